package version

import (
	"bytes"
	"encoding/json"
	"fmt"
	"runtime"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/trufnetwork/kwil-db/app/shared/display"
)

const versionTemplate = `
 Version:	{{.Version}}
 Git commit:	{{.GitCommit}}
 Built:		{{.BuildTime}}
 Go version:	{{.GoVersion}}
 OS/Arch:	{{.Os}}/{{.Arch}}`

type versionInfo struct {
	// build-time info
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	// client machine info
	GoVersion string `json:"go_version"`
	Os        string `json:"os"`
	Arch      string `json:"arch"`
}

// respVersionInfo adapts versionInfo to the display package's text and JSON
// output modes.
type respVersionInfo struct {
	Info *versionInfo
}

func (v *respVersionInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Info)
}

func (v *respVersionInfo) MarshalText() ([]byte, error) {
	tmpl, err := template.New("version").Parse(versionTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse version template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, v.Info); err != nil {
		return nil, fmt.Errorf("render version info: %w", err)
	}
	return buf.Bytes(), nil
}

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display the application version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return display.PrintCmd(cmd, &respVersionInfo{
				Info: &versionInfo{
					Version:   getVersion(),
					GitCommit: getCommit(),
					BuildTime: getBuildTimeDisplay(),
					GoVersion: runtime.Version(),
					Os:        runtime.GOOS,
					Arch:      runtime.GOARCH,
				},
			})
		},
	}
}
