package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"realtime-whiteboard/internal/model"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printObjects writes objects as a table or a JSON array.
func printObjects(w io.Writer, format string, objects []model.BoardObject) error {
	if format == "json" {
		if objects == nil {
			objects = []model.BoardObject{}
		}
		return printJSON(w, objects)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tX\tY\tW\tH\tCOLOR\tTEXT")
	for _, o := range objects {
		fmt.Fprintf(tw, "%s\t%s\t%.0f\t%.0f\t%.0f\t%.0f\t%s\t%s\n",
			o.ID, o.Type, o.X, o.Y, o.Width, o.Height, o.Color, o.Text)
	}
	return tw.Flush()
}
