package config

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// SampleYAML renders a commented configuration file with every parameter.
// repoURL fills in repo_url; derived parameters are emitted as comments only.
func SampleYAML(repoURL string) ([]byte, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode}

	for _, p := range Parameters {
		if p.Derived {
			doc.FootComment += fmt.Sprintf("%s: derived from repo_url unless set (%s)\n", p.Name, p.Description)
			continue
		}

		value := p.Default
		if p.Name == ParamRepoURL {
			value = repoURL
		}

		key := &yaml.Node{Kind: yaml.ScalarNode, Value: p.Name, HeadComment: p.Description}
		var val *yaml.Node
		if p.List {
			val = &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
			for _, item := range splitList(value) {
				val.Content = append(val.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: item})
			}
		} else {
			val = &yaml.Node{Kind: yaml.ScalarNode, Value: value}
			switch p.Name {
			case ParamPort:
				val.Tag = "!!int"
			case ParamConfigureProxy:
				val.Tag = "!!bool"
			default:
				val.Tag = "!!str"
			}
		}
		doc.Content = append(doc.Content, key, val)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode sample config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
