// Package config loads mealgen runtime configuration.
//
// Values come, lowest precedence first, from built-in defaults, an optional
// YAML file, an optional .env file and MEALGEN_-prefixed environment
// variables. Nested keys map to variables by replacing dots with
// underscores, so budget.window_ms is read from MEALGEN_BUDGET_WINDOW_MS.
//
// Secret-bearing values (store DSN, Redis password, generator API key) may
// reference the environment as ${VAR}; a reference to an unset variable is
// an error rather than an empty string.
package config
