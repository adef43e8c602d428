package extensions

import (
	"github.com/clustermesh/authority/extensions/cluster_authority"
)

func init() {
	cluster_authority.InitializeExtension()
}
