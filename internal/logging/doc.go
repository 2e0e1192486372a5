// Package logging provides leveled logging for dataset-coach.
//
// The level is read from the DEBUG and LOG_LEVEL environment variables at
// startup and can be raised at runtime (the CLI's --verbose flag does this).
package logging
