package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/manimchat/manimchat/internal/config"
)

func newInitCmd() *cobra.Command {
	var defaults, force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive configuration wizard",
		Long: "Guides you through setting up manimchat: choose the LLM provider the\n" +
			"backend uses, enter its API key and the backend URL, and save the config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				path = config.DefaultPath()
			}
			if path == "" {
				return fmt.Errorf("cannot determine config path; pass --config")
			}
			if defaults {
				if err := config.WriteDefault(path, force); err != nil {
					return err
				}
				fmt.Printf("Default config written to %s\n", path)
				return nil
			}
			return runInit(path)
		},
	}
	cmd.Flags().BoolVar(&defaults, "defaults", false, "write the default config without prompting")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config (with --defaults)")
	return cmd
}

func runInit(configPath string) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("Welcome to the manimchat configuration wizard!")
	fmt.Println()

	// Provider selection
	providers := []string{"openai", "anthropic", "deepseek", "gemini", "qwen", "groq", "ollama"}
	fmt.Println("Available providers:")
	for i, p := range providers {
		fmt.Printf("  %d. %s\n", i+1, p)
	}
	fmt.Printf("\nSelect provider (1-%d) [1]: ", len(providers))
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	selectedIdx := 0
	if input != "" {
		n := 0
		for _, c := range input {
			if c >= '0' && c <= '9' {
				n = n*10 + int(c-'0')
			}
		}
		if n >= 1 && n <= len(providers) {
			selectedIdx = n - 1
		}
	}
	providerName := providers[selectedIdx]
	fmt.Printf("Selected: %s\n\n", providerName)

	// API key
	fmt.Printf("Enter API key for %s: ", providerName)
	apiKey, _ := reader.ReadString('\n')
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" && providerName != "ollama" {
		return fmt.Errorf("API key cannot be empty")
	}

	cfg := config.DefaultConfig()
	fmt.Printf("Backend URL [%s]: ", cfg.Backend.URL)
	backendURL, _ := reader.ReadString('\n')
	if backendURL = strings.TrimSpace(backendURL); backendURL != "" {
		cfg.Backend.URL = backendURL
	}

	cfg.Provider = providerName
	cfg.Providers[providerName] = &config.ProviderConfig{APIKey: apiKey}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("\nConfig file already exists at %s\n", configPath)
		fmt.Print("Overwrite? [y/N]: ")
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := config.WriteFile(configPath, data); err != nil {
		return err
	}

	fmt.Printf("\nConfig saved to %s\n", configPath)
	fmt.Println("Start the backend with: manimchat serve")
	fmt.Println("Then chat with:         manimchat")
	return nil
}
