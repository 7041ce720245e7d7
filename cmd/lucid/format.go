package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}

// outputResult writes a CLIResult to w in the selected format.
func outputResult(w io.Writer, result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(w, result)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "%s %s\n", errorStyle.Render("Error:"), err)
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

// outputResultText dispatches to the text formatter for the result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case CLIRunResult:
		formatRunResultText(w, v)
	case []CLIRun:
		formatRunsText(w, v)
	case []CLIModule:
		formatModulesText(w, v)
	case []CLIDefinition:
		formatDefinitionsText(w, v)
	case *CLIEntryPoint:
		formatEntryPointText(w, v)
	case []any:
		for _, item := range v {
			fmt.Fprintf(w, "%v\n", item)
		}
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

func formatRunResultText(w io.Writer, r CLIRunResult) {
	if r.Entry != nil {
		fmt.Fprintf(w, "%s %s at %s:%d:%d\n",
			successStyle.Render("entry point"), r.Entry.Name, r.Entry.File, r.Entry.Line, r.Entry.Col)
		fmt.Fprintf(w, "  %s\n", entrySignature(r.Entry))
	}
	fmt.Fprintf(w, "%d modules, %d definitions\n", r.Modules, r.Definitions)
	for _, u := range r.Unrepresentable {
		detail := u.Reason
		if u.DefKind != "" {
			detail += ", " + u.DefKind
		}
		fmt.Fprintf(w, "%s %s in %s (%s)\n", warningStyle.Render("skipped"), u.Name, u.File, detail)
	}
	if r.Warnings > 0 {
		fmt.Fprintln(w, warningStyle.Render(fmt.Sprintf("%d warning(s), see the log", r.Warnings)))
	}
	status := fmt.Sprintf("run %s in %s", r.RunID, (time.Duration(r.DurationMS) * time.Millisecond).String())
	if r.Saved {
		status += ", saved"
	}
	fmt.Fprintln(w, statusStyle.Render(status))
}

func entrySignature(ep *CLIEntryPoint) string {
	var b strings.Builder
	if ep.Visibility == "Public" {
		b.WriteString("pub ")
	}
	if ep.Unconstrained {
		b.WriteString("unconstrained ")
	}
	fmt.Fprintf(&b, "fn %s(%s)", ep.Name, strings.Join(ep.Params, ", "))
	if ep.ReturnType != "" {
		b.WriteString(" -> " + ep.ReturnType)
	}
	return b.String()
}

func formatRunsText(w io.Writer, runs []CLIRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tENTRY\tPOLICY\tMODULES\tDEFINITIONS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s::%s\t%s\t%d\t%d\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.EntryFile, r.EntryPoint, r.Policy,
			r.ModuleCount, r.DefinitionCount)
	}
	tw.Flush()
}

func formatModulesText(w io.Writer, mods []CLIModule) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CRATE\tID\tPARENT\tFILE\tCHILDREN")
	for _, m := range mods {
		parent := "-"
		if m.Parent != nil {
			parent = fmt.Sprint(*m.Parent)
		}
		names := make([]string, 0, len(m.Children))
		for name, id := range m.Children {
			names = append(names, fmt.Sprintf("%s=%d", name, id))
		}
		sort.Strings(names)
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", m.Crate, m.LocalID, parent, m.File, strings.Join(names, " "))
	}
	tw.Flush()
}

func formatDefinitionsText(w io.Writer, defs []CLIDefinition) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tVISIBILITY\tMODULE\tLOCATION")
	for _, d := range defs {
		name := d.Name
		if d.Stdlib {
			name += " (std)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s:%d:%d\n", name, d.Kind, d.Visibility, d.Module, d.File, d.Line, d.Col)
	}
	tw.Flush()
}

func formatEntryPointText(w io.Writer, ep *CLIEntryPoint) {
	if ep == nil {
		return
	}
	fmt.Fprintf(w, "%s:%d:%d\n%s\n", ep.File, ep.Line, ep.Col, entrySignature(ep))
}
