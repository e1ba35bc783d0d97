package lyra

var (
	version  = "0.1.0"
	revision = "dev"
)
