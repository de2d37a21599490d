package commands

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// stripUnknownFlags removes options that no command defines and returns them separately, so
// a stray option is reported and the run goes ahead. An unknown option written without "="
// also takes the next bare word as its value when the invoked command accepts no arguments;
// for commands with arguments such values must be attached with "=".
func stripUnknownFlags(root *cobra.Command, args []string) (kept, unknown []string) {
	known := pflag.NewFlagSet("known", pflag.ContinueOnError)
	collect := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			if known.Lookup(f.Name) == nil {
				known.AddFlag(f)
			}
		})
	}

	var walk func(cmd *cobra.Command)
	walk = func(cmd *cobra.Command) {
		cmd.InitDefaultHelpFlag()
		cmd.InitDefaultVersionFlag()
		collect(cmd.Flags())
		collect(cmd.PersistentFlags())
		for _, sub := range cmd.Commands() {
			walk(sub)
		}
	}
	walk(root)

	target := invokedCommand(root, args)
	takesNoArgs := target.Args != nil && target.Args(target, []string{"value"}) != nil

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			kept = append(kept, args[i:]...)
			break
		}
		if len(arg) < 2 || arg[0] != '-' {
			kept = append(kept, arg)
			continue
		}

		var flag *pflag.Flag
		inline := strings.Contains(arg, "=")
		if strings.HasPrefix(arg, "--") {
			name, _, _ := strings.Cut(arg[2:], "=")
			flag = known.Lookup(name)
		} else {
			flag = known.ShorthandLookup(arg[1:2])
			inline = inline || len(arg) > 2
		}

		if flag == nil {
			if !inline && takesNoArgs && i+1 < len(args) && isValue(root, args[i+1]) {
				i++
				arg += " " + args[i]
			}
			unknown = append(unknown, arg)
			continue
		}

		kept = append(kept, arg)
		if !inline && flag.NoOptDefVal == "" && i+1 < len(args) {
			i++
			kept = append(kept, args[i])
		}
	}
	return kept, unknown
}

// invokedCommand returns the subcommand named in args, or root.
func invokedCommand(root *cobra.Command, args []string) *cobra.Command {
	for _, arg := range args {
		if arg == "--" {
			break
		}
		if sub := subcommand(root, arg); sub != nil {
			return sub
		}
	}
	return root
}

func subcommand(root *cobra.Command, name string) *cobra.Command {
	for _, sub := range root.Commands() {
		if sub.Name() == name || sub.HasAlias(name) {
			return sub
		}
	}
	return nil
}

// isValue reports whether arg can be the value of a preceding unknown option.
func isValue(root *cobra.Command, arg string) bool {
	return arg != "--" && !strings.HasPrefix(arg, "-") && subcommand(root, arg) == nil
}
