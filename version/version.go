package version

var Version version

func init() {
	Version = version{Version: "v0.3.0", Product: "lico-core", Website: "https://github.com/licoproject/lico-core"}
}

type version struct {
	Version string `json:"version"`
	Product string `json:"product"`
	Website string `json:"website"`
}
