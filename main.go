// Copyright 2025 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cloudwego/autopatch/internal/config"
	"github.com/cloudwego/autopatch/internal/log"
	"github.com/cloudwego/autopatch/internal/patch"
	"github.com/cloudwego/autopatch/internal/pipeline"
	"github.com/cloudwego/autopatch/internal/ratelimit"
	"github.com/cloudwego/autopatch/internal/transcript"
	"github.com/cloudwego/autopatch/internal/workspace"
	"github.com/cloudwego/autopatch/lang/pattern"
	"github.com/cloudwego/autopatch/lang/sitter"
	"github.com/cloudwego/autopatch/lang/symbol"
	"github.com/cloudwego/autopatch/llm"
	"github.com/cloudwego/autopatch/version"
)

const Usage = `autopatch <Action> <Path> [Flags]
Action:
   run          run the patching pipeline for a goal against a project directory
   symbols      print the symbols of a source file as JSON
   diff         print the unified diff between two files
   version      print the version of autopatch
`

func main() {
	flags := flag.NewFlagSet("autopatch", flag.ExitOnError)

	flagHelp := flags.Bool("h", false, "Show help message.")
	flagVerbose := flags.Bool("verbose", false, "Verbose mode.")
	flagGoal := flags.String("goal", "", "Natural-language goal for the run action.")
	flagConfig := flags.String("config", "", "Config file path (JSON).")
	flagModel := flags.String("model", "", "Model alias from the config to use.")
	flagState := flags.String("state", "", "Write the final pipeline state to this JSON file.")
	flagContext := flags.Int("context", patch.DefaultContextLines, "Context lines for the diff action.")

	flags.Usage = func() {
		fmt.Fprint(os.Stderr, Usage)
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flags.PrintDefaults()
	}

	if len(os.Args) < 2 {
		flags.Usage()
		os.Exit(1)
	}
	action := strings.ToLower(os.Args[1])

	switch action {
	case "version":
		fmt.Fprintf(os.Stdout, "%s\n", version.Version)

	case "run":
		uri := parseArgsAndFlags(flags, flagHelp, flagVerbose)
		if *flagGoal == "" {
			log.Error("flag -goal is required for run\n")
			os.Exit(1)
		}
		if err := runPipeline(uri, *flagGoal, *flagConfig, *flagModel, *flagState); err != nil {
			log.Error("run failed: %v\n", err)
			os.Exit(1)
		}

	case "symbols":
		uri := parseArgsAndFlags(flags, flagHelp, flagVerbose)
		if err := printSymbols(uri); err != nil {
			log.Error("symbols failed: %v\n", err)
			os.Exit(1)
		}

	case "diff":
		if len(os.Args) < 4 {
			fmt.Fprintf(os.Stderr, "Usage: autopatch diff <old-file> <new-file>\n")
			os.Exit(1)
		}
		oldPath, newPath := os.Args[2], os.Args[3]
		if len(os.Args) > 4 {
			flags.Parse(os.Args[4:])
		}
		if err := printDiff(oldPath, newPath, *flagContext); err != nil {
			log.Error("diff failed: %v\n", err)
			os.Exit(1)
		}

	default:
		flags.Usage()
		os.Exit(1)
	}
}

func parseArgsAndFlags(flags *flag.FlagSet, flagHelp, flagVerbose *bool) (uri string) {
	if len(os.Args) < 3 {
		flags.Usage()
		os.Exit(1)
	}
	uri = os.Args[2]
	if len(os.Args) > 3 {
		flags.Parse(os.Args[3:])
	}

	if flagHelp != nil && *flagHelp {
		flags.Usage()
		os.Exit(0)
	}
	if flagVerbose != nil && *flagVerbose {
		log.SetDebug(true)
	}
	return uri
}

func runPipeline(root, goal, configPath, modelAlias, statePath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Debug {
		log.SetDebug(true)
	}

	modelCfg, err := cfg.Model(modelAlias)
	if err != nil {
		return err
	}
	chatModel, err := llm.NewChatModel(modelCfg)
	if err != nil {
		return err
	}

	var store ratelimit.CounterStore
	if cfg.Redis.Addr != "" {
		rs := ratelimit.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer rs.Close()
		store = rs
	} else {
		store = ratelimit.NewMemoryStore()
	}

	sink := transcript.Func(func(msg string) {
		fmt.Fprintln(os.Stdout, msg)
	})

	controller := ratelimit.NewController(store, cfg.EffectiveLimits(), sink)
	guard := ratelimit.NewGuard(controller, sink)
	guard.IsThrottle = llm.IsThrottle

	files, err := workspace.NewDirStore(root)
	if err != nil {
		return err
	}

	o := pipeline.New(sink)
	pipeline.RegisterDefaults(o, pipeline.Collaborators{
		Caller:   llm.NewClient(chatModel),
		Provider: modelCfg.Provider(),
		Guard:    guard,
		Files:    files,
		Index:    workspace.NewScanIndex(files),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := pipeline.NewState(goal)
	runErr := o.Run(ctx, st)

	if statePath != "" {
		if err := st.SaveToFile(statePath); err != nil {
			log.Warn("save state: %v", err)
		}
	}
	return runErr
}

func printSymbols(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lang := symbol.LanguageForPath(path)
	if lang == symbol.Unknown {
		return fmt.Errorf("cannot detect language of %s", path)
	}

	syms, err := symbol.Chain(sitter.New(), pattern.New()).Extract(string(data), lang)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(syms, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%s\n", out)
	return nil
}

func printDiff(oldPath, newPath string, contextLines int) error {
	oldData, err := os.ReadFile(oldPath)
	if err != nil {
		return err
	}
	newData, err := os.ReadFile(newPath)
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stdout, patch.Diff(newPath, string(oldData), string(newData), contextLines))
	return nil
}
