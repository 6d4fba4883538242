// Package cmd provides the command-line interface implementation for mchown.
//
// It uses the Cobra library for command structure and Fang for styling. The
// root command runs the ownership change itself; utilities are subcommands:
//   - seed: Test tree generation
//   - count: Entry counting and owner verification
//
// Each command is implemented as a separate file with its own constructor
// function that returns a *cobra.Command.
package cmd
