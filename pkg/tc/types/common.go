package types

// CmdLineGenerator is implemented by tc objects which can be expressed as tc command line arguments
type CmdLineGenerator interface {
	// GenCmdLineArgs returns the arguments describing the object, as passed to the tc binary
	// by the cmdline driver and written to plan dumps
	GenCmdLineArgs() []string
}
