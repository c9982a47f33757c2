package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"sweepnspect/internal/config"
	"sweepnspect/internal/models"
	"sweepnspect/internal/services"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage automation rules",
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import automation rules from a YAML file",
	Long: `Import automation rules from a YAML file. The file is either a list of
rules or a mapping with a "rules" key. Rules with an existing id are
replaced, the rest are created. Omitted "enabled" means enabled.`,
	Args: cobra.ExactArgs(1),
	RunE: runRulesImport,
}

func init() {
	rulesCmd.AddCommand(rulesImportCmd)
	rootCmd.AddCommand(rulesCmd)
}

func runRulesImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	rules, err := parseRuleFile(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logrus.New()
	if err := config.ConfigureLogger(logger, cfg.Log); err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	automation := services.NewAutomationService(st, nil, nil, cfg.Automation, cfg.Relay, logger)
	n, err := automation.ImportRules(context.Background(), rules)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d rules\n", n)
	return nil
}

// ruleDocument 文件中的规则，enabled 缺省为 true
type ruleDocument struct {
	ID         string                 `yaml:"id"`
	Name       string                 `yaml:"name"`
	Event      string                 `yaml:"event"`
	Enabled    *bool                  `yaml:"enabled"`
	Conditions []models.RuleCondition `yaml:"conditions"`
	Actions    []models.RuleAction    `yaml:"actions"`
}

func (d ruleDocument) rule() models.AutomationRule {
	enabled := true
	if d.Enabled != nil {
		enabled = *d.Enabled
	}
	return models.AutomationRule{
		ID:         d.ID,
		Name:       d.Name,
		Event:      d.Event,
		Enabled:    enabled,
		Conditions: d.Conditions,
		Actions:    d.Actions,
	}
}

// parseRuleFile 支持顶层列表或 {rules: [...]}
func parseRuleFile(data []byte) ([]models.AutomationRule, error) {
	var root yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty rule file")
		}
		return nil, err
	}

	var docs []ruleDocument
	node := &root
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	switch node.Kind {
	case yaml.SequenceNode:
		if err := node.Decode(&docs); err != nil {
			return nil, err
		}
	case yaml.MappingNode:
		var wrapper struct {
			Rules []ruleDocument `yaml:"rules"`
		}
		if err := node.Decode(&wrapper); err != nil {
			return nil, err
		}
		docs = wrapper.Rules
	default:
		return nil, fmt.Errorf("expected a list of rules")
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no rules in file")
	}

	rules := make([]models.AutomationRule, 0, len(docs))
	for _, d := range docs {
		rules = append(rules, d.rule())
	}
	return rules, nil
}
