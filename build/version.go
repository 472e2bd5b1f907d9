package build

var CurrentCommit string
var BuildType int

const (
	BuildMainnet = 0x1
	BuildDevnet  = 0x2
	BuildDebug   = 0x3
)

func BuildTypeString() string {
	switch BuildType {
	case BuildMainnet:
		return "+mainnet"
	case BuildDevnet:
		return "+devnet"
	case BuildDebug:
		return "+debug"
	default:
		return "+huh?"
	}
}

const BuildVersion = "0.3.1"

func UserVersion() string {
	return BuildVersion + BuildTypeString() + CurrentCommit
}
