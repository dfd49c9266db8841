package scoring

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"eventtriage/pkg/models"
)

// PortEntry is the criticality of one well-known port.
type PortEntry struct {
	Score   float64 `yaml:"score"`
	Service string  `yaml:"service"`
}

// Tables are the lookup tables the five-factor scheme reads.
type Tables struct {
	DefaultAttackSeverity float64            `yaml:"default_attack_severity"`
	BenignLabel           string             `yaml:"benign_label"`
	AttackTypes           map[string]float64 `yaml:"attack_types"`
	Ports                 map[int]PortEntry  `yaml:"ports"`
}

// DefaultTables returns the built-in severity and port tables.
func DefaultTables() Tables {
	return Tables{
		DefaultAttackSeverity: 25,
		BenignLabel:           models.BenignLabel,
		AttackTypes: map[string]float64{
			"DDoS":                     100,
			"Infiltration":             95,
			"DoS Hulk":                 90,
			"DoS GoldenEye":            90,
			"DoS slowloris":            85,
			"DoS Slowhttptest":         85,
			"Heartbleed":               85,
			"Bot":                      80,
			"Web Attack Sql Injection": 80,
			"SSH-Patator":              75,
			"FTP-Patator":              70,
			"Web Attack Brute Force":   70,
			"Web Attack XSS":           65,
			"PortScan":                 50,
			models.BenignLabel:         0,
		},
		Ports: map[int]PortEntry{
			3389: {Score: 95, Service: "RDP"},
			22:   {Score: 90, Service: "SSH"},
			443:  {Score: 90, Service: "HTTPS"},
			23:   {Score: 85, Service: "Telnet"},
			80:   {Score: 85, Service: "HTTP"},
			1433: {Score: 85, Service: "MSSQL"},
			3306: {Score: 85, Service: "MySQL"},
			5432: {Score: 85, Service: "PostgreSQL"},
			53:   {Score: 80, Service: "DNS"},
			445:  {Score: 80, Service: "SMB"},
			5900: {Score: 80, Service: "VNC"},
			8443: {Score: 80, Service: "HTTPS-Alt"},
			8080: {Score: 75, Service: "HTTP-Alt"},
			21:   {Score: 75, Service: "FTP"},
			20:   {Score: 70, Service: "FTP-Data"},
			25:   {Score: 70, Service: "SMTP"},
			110:  {Score: 65, Service: "POP3"},
			143:  {Score: 65, Service: "IMAP"},
		},
	}
}

// LoadTables reads tables from a YAML file and layers them over the defaults.
func LoadTables(path string) (Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read scoring tables: %w", err)
	}
	var override Tables
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Tables{}, fmt.Errorf("parse scoring tables: %w", err)
	}
	return DefaultTables().Merge(override), nil
}

// Merge returns a copy of t with every entry of o applied on top.
func (t Tables) Merge(o Tables) Tables {
	out := t.clone()
	if o.DefaultAttackSeverity > 0 {
		out.DefaultAttackSeverity = o.DefaultAttackSeverity
	}
	if strings.TrimSpace(o.BenignLabel) != "" {
		out.BenignLabel = strings.TrimSpace(o.BenignLabel)
	}
	for k, v := range o.AttackTypes {
		out.AttackTypes[k] = clamp(v, 0, 100)
	}
	for k, v := range o.Ports {
		v.Score = clamp(v.Score, 0, 100)
		out.Ports[k] = v
	}
	return out
}

func (t Tables) clone() Tables {
	out := Tables{
		DefaultAttackSeverity: t.DefaultAttackSeverity,
		BenignLabel:           t.BenignLabel,
		AttackTypes:           make(map[string]float64, len(t.AttackTypes)),
		Ports:                 make(map[int]PortEntry, len(t.Ports)),
	}
	for k, v := range t.AttackTypes {
		out.AttackTypes[k] = v
	}
	for k, v := range t.Ports {
		out.Ports[k] = v
	}
	return out
}
