// Command agent is the reflexsoar-agent process entrypoint: it parses the
// fixed CLI surface described in spec.md §6, loads (or initializes) the
// persistent config document, and dispatches to pairing, a one-shot
// heartbeat, or the full supervised run loop. Grounded on
// cmd/appserver/main.go's flag.String/flag.Bool + os/signal shutdown idiom.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/reflexsoar/reflex-agent-go/internal/agent"
	"github.com/reflexsoar/reflex-agent-go/internal/agentmetrics"
	"github.com/reflexsoar/reflex-agent-go/internal/config"
	"github.com/reflexsoar/reflex-agent-go/internal/envconfig"
	"github.com/reflexsoar/reflex-agent-go/internal/logging"
	"github.com/reflexsoar/reflex-agent-go/internal/vault"

	// Side-effect imports register the built-in roles with roleregistry.
	_ "github.com/reflexsoar/reflex-agent-go/internal/detector"
	_ "github.com/reflexsoar/reflex-agent-go/internal/poller"
)

const defaultAgentName = "reflexsoar-agent"

func main() {
	pair := flag.Bool("pair", false, "pair with a console and exit unless --start is also given")
	pairSkipStart := flag.Bool("pair-skip-start", false, "pair with a console without starting the run loop")
	start := flag.Bool("start", false, "start the supervised run loop")
	console := flag.String("console", envconfig.GetEnv("REFLEX_API_HOST", ""), "console base URL")
	token := flag.String("token", envconfig.GetEnv("REFLEX_AGENT_PAIR_TOKEN", ""), "console pairing API key")
	groups := flag.String("groups", "", "comma-separated group names to request at pairing time")
	clearPersistentConfig := flag.Bool("clear-persistent-config", false, "delete the persistent config file and exit")
	resetConsolePairing := flag.String("reset-console-pairing", "", "remove the paired console at this URL and exit")
	viewConfig := flag.Bool("view-config", false, "print the persistent config document and exit")
	setConfigValue := flag.String("set-config-value", "", "KEY:VALUE[,VALUE...] to apply to the persistent config")
	heartbeat := flag.Bool("heartbeat", false, "send a single heartbeat and exit")
	configPath := flag.String("config-path", "", "override the persistent config file path")
	initVault := flag.Bool("init-secrets-vault", false, "initialize an empty secrets vault and exit")
	vaultPath := flag.String("vault-path", "", "directory containing the secrets vault file")
	vaultName := flag.String("vault-name", envconfig.GetEnv("REFLEX_AGENT_VAULT_NAME", "reflexsoar-agent-vault.yml"), "secrets vault file name")
	vaultKey := flag.String("vault-key", envconfig.GetEnv("REFLEX_AGENT_VAULT_SECRET", ""), "secrets vault master key")
	addSecret := flag.String("add-secret", "", "USERNAME:PASSWORD to add to the secrets vault and exit")
	name := flag.String("name", defaultAgentName, "agent name reported to the console")
	flag.Parse()

	logger := logging.NewFromEnv("agent")

	resolvedPath := resolveConfigPath(*configPath)

	if *clearPersistentConfig {
		cfg := config.Load(resolvedPath, *name)
		if err := cfg.Clear(); err != nil {
			log.Fatalf("agent: clear config: %v", err)
		}
		os.Exit(0)
	}

	cfg := config.Load(resolvedPath, *name)

	if *resetConsolePairing != "" {
		if err := cfg.RemovePairedConsole(*resetConsolePairing); err != nil {
			log.Fatalf("agent: reset console pairing: %v", err)
		}
		if err := cfg.Save(); err != nil {
			log.Fatalf("agent: save config: %v", err)
		}
		os.Exit(0)
	}

	if *viewConfig {
		data, err := os.ReadFile(resolvedPath)
		if err != nil {
			log.Fatalf("agent: view config: %v", err)
		}
		fmt.Println(string(data))
		os.Exit(0)
	}

	if *setConfigValue != "" {
		key, value, ok := strings.Cut(*setConfigValue, ":")
		if !ok {
			log.Fatalf("agent: --set-config-value must be KEY:VALUE")
		}
		if err := cfg.SetValue(key, value); err != nil {
			log.Fatalf("agent: set config value: %v", err)
		}
		if err := cfg.Save(); err != nil {
			log.Fatalf("agent: save config: %v", err)
		}
		os.Exit(0)
	}

	if *initVault || *addSecret != "" {
		v, err := vault.New(resolveVaultDir(*vaultPath), *vaultName, []byte(*vaultKey), vault.WithEmptyVault())
		if err != nil {
			log.Fatalf("agent: open vault: %v", err)
		}
		if *addSecret != "" {
			username, password, ok := strings.Cut(*addSecret, ":")
			if !ok {
				log.Fatalf("agent: --add-secret must be USERNAME:PASSWORD")
			}
			if _, err := v.Create(username, password); err != nil {
				log.Fatalf("agent: add secret: %v", err)
			}
		}
		if err := v.Save(); err != nil {
			log.Fatalf("agent: save vault: %v", err)
		}
		os.Exit(0)
	}

	metrics := agentmetrics.Init(cfg.Name)
	sup := agent.New(cfg, metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *pair || envconfig.GetEnvBool("REFLEX_AGENT_PAIR_MODE", false) {
		groupList := splitNonEmpty(*groups)
		if err := sup.Pair(ctx, *console, *token, groupList); err != nil {
			logger.WithError(err).Error("agent: pairing failed")
			os.Exit(1)
		}
		if err := cfg.Save(); err != nil {
			logger.WithError(err).Error("agent: failed to save config after pairing")
			os.Exit(1)
		}
		if *pairSkipStart || !*start {
			os.Exit(0)
		}
	}

	if warnings := sup.Boot(ctx); len(warnings) > 0 {
		for _, w := range warnings {
			logger.WithField("warning", w).Warn("agent: boot warning")
		}
	}

	if *heartbeat {
		if _, err := sup.Heartbeat(ctx, true); err != nil {
			logger.WithError(err).Error("agent: heartbeat failed")
			os.Exit(1)
		}
		os.Exit(0)
	}

	if !*start {
		os.Exit(0)
	}

	if err := sup.Run(ctx); err != nil {
		logger.WithError(err).Error("agent: run loop exited with error")
		os.Exit(1)
	}
	os.Exit(0)
}

func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, ".reflexsoar-agent", "persistent-config.json")
}

func resolveVaultDir(explicit string) string {
	if explicit != "" {
		return explicit
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, ".reflexsoar-agent")
}

func splitNonEmpty(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
