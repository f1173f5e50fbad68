// Package cli is responsible for parsing command-line arguments, validating
// user input, and handling process-level concerns like exit codes. It
// translates the serve, run and plan commands into calls on the application.
package cli
