// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"

	"grimm.is/flowtrack/internal/errors"
)

// LoadFile reads a config file, picking the format from its extension
// (.hcl, .yaml/.yml or .json), then applies defaults and validates.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindNotFound, "failed to read config file")
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".hcl":
		return LoadHCL(data, path)
	case ".yaml", ".yml":
		return LoadYAML(data)
	case ".json":
		return LoadJSON(data)
	default:
		return nil, errors.Errorf(errors.KindValidation, "unsupported config format %q", ext)
	}
}

// LoadHCL decodes HCL source. filename is only used in diagnostics.
func LoadHCL(data []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, errors.Errorf(errors.KindValidation, "failed to parse HCL: %s", diags.Error())
	}

	var cfg Config
	if diags := gohcl.DecodeBody(file.Body, nil, &cfg); diags.HasErrors() {
		return nil, errors.Errorf(errors.KindValidation, "failed to decode HCL: %s", diags.Error())
	}
	return finish(&cfg)
}

// LoadYAML decodes YAML source. Unknown keys are rejected.
func LoadYAML(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, errors.KindValidation, "failed to parse YAML")
	}
	return finish(&cfg)
}

// LoadJSON decodes JSON source. Unknown keys are rejected.
func LoadJSON(data []byte) (*Config, error) {
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "failed to parse JSON")
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveFile writes cfg in the format implied by the path's extension.
func SaveFile(cfg *Config, path string) error {
	var data []byte
	var err error

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".hcl":
		data = GenerateHCL(cfg)
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	default:
		return errors.Errorf(errors.KindValidation, "unsupported config format %q", ext)
	}
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to marshal config")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to create parent directory")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to write config file")
	}
	return nil
}

// GenerateHCL renders cfg as formatted HCL.
func GenerateHCL(cfg *Config) []byte {
	f := hclwrite.NewEmptyFile()
	root := f.Body()

	if ft := cfg.FlowTable; ft != nil {
		body := root.AppendNewBlock("flow_table", nil).Body()
		body.SetAttributeValue("buckets", cty.NumberIntVal(int64(ft.Buckets)))
		body.SetAttributeValue("bucket_capacity", cty.NumberIntVal(int64(ft.BucketCapacity)))
		if ft.Hash != "" {
			body.SetAttributeValue("hash", cty.StringVal(ft.Hash))
		}
		if ft.NoBlockReserve != nil {
			body.SetAttributeValue("no_block_reserve", cty.NumberIntVal(int64(*ft.NoBlockReserve)))
		}
	}

	if lc := cfg.Logging; lc != nil {
		root.AppendNewline()
		body := root.AppendNewBlock("logging", nil).Body()
		if lc.Level != "" {
			body.SetAttributeValue("level", cty.StringVal(lc.Level))
		}
		if lc.JSON {
			body.SetAttributeValue("json", cty.True)
		}
		if s := lc.Syslog; s != nil {
			sb := body.AppendNewBlock("syslog", nil).Body()
			sb.SetAttributeValue("enabled", cty.BoolVal(s.Enabled))
			if s.Host != "" {
				sb.SetAttributeValue("host", cty.StringVal(s.Host))
			}
			sb.SetAttributeValue("port", cty.NumberIntVal(int64(s.Port)))
			sb.SetAttributeValue("protocol", cty.StringVal(s.Protocol))
			sb.SetAttributeValue("tag", cty.StringVal(s.Tag))
			sb.SetAttributeValue("facility", cty.NumberIntVal(int64(s.Facility)))
		}
	}

	return hclwrite.Format(f.Bytes())
}
