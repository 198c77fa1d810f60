package main

import "github.com/vinayprograms/conductor/internal/setup"

// Run starts the interactive setup wizard.
func (c *SetupCmd) Run() error {
	return setup.Run()
}
