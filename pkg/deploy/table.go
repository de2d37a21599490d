package deploy

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/openfroyo/froyo-deploy/pkg/engine"
)

// WriteStepTable prints the fixed step table.
func WriteStepTable(w io.Writer, steps []engine.Step) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTEP\tGUARD\tBRANCH")
	for _, s := range steps {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Index, s.Name, s.GuardDescription, s.BranchDependency)
	}
	return tw.Flush()
}
