package scanner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/CosmoTheDev/devsecwatch-worker/models"
)

// stringList tolerates schema drift where fields may be a string,
// array of strings, null, or omitted.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	if l == nil {
		return nil
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*l = arr
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*l = nil
		} else {
			*l = []string{one}
		}
		return nil
	}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*l = nil
		return nil
	}
	return fmt.Errorf("unsupported string-list JSON shape: %s", string(data))
}

func (l stringList) first() string {
	for _, s := range l {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// semgrepResult mirrors one entry of the semgrep/opengrep JSON results array.
type semgrepResult struct {
	CheckID string `json:"check_id"`
	Path    string `json:"path"`
	Start   struct {
		Line int `json:"line"`
	} `json:"start"`
	Extra struct {
		Message  string `json:"message"`
		Severity string `json:"severity"`
		Lines    string `json:"lines"`
		Metadata struct {
			CVE                stringList `json:"cve"`
			Confidence         string     `json:"confidence"`
			CWE                stringList `json:"cwe"`
			VulnerabilityClass stringList `json:"vulnerability_class"`
			Category           string     `json:"category"`
		} `json:"metadata"`
	} `json:"extra"`
}

type semgrepOutput struct {
	Results *[]semgrepResult `json:"results"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// ParseResults decodes engine output and keeps only actionable findings.
// It returns the kept findings and the raw result count. A document without
// a results array is malformed; an empty array is a clean scan.
func ParseResults(data []byte) ([]models.Finding, int, error) {
	var out semgrepOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if out.Results == nil {
		return nil, 0, fmt.Errorf("%w: missing results array", ErrMalformedOutput)
	}

	results := *out.Results
	findings := make([]models.Finding, 0, len(results))
	for _, r := range results {
		sev := models.MapSeverity(r.Extra.Severity)
		if !sev.Actionable() {
			continue
		}
		md := r.Extra.Metadata
		findings = append(findings, models.Finding{
			FilePath:   cleanPath(r.Path),
			Line:       r.Start.Line,
			RuleID:     r.CheckID,
			VulnType:   ClassifyVulnType(r.CheckID, append(append(stringList{}, md.VulnerabilityClass...), md.CWE...)),
			Severity:   sev,
			Message:    r.Extra.Message,
			Snippet:    r.Extra.Lines,
			Confidence: confidenceScore(md.Confidence),
			CVE:        md.CVE.first(),
		})
	}
	return findings, len(results), nil
}

// confidenceScore converts the rule's confidence label to 0.0-1.0.
func confidenceScore(label string) float64 {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "HIGH":
		return 0.9
	case "MEDIUM":
		return 0.7
	case "LOW":
		return 0.5
	default:
		return 0.8
	}
}

func cleanPath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.TrimPrefix(p, "/src/")
	return strings.TrimPrefix(p, "./")
}

// vulnTypeKeywords maps explanation template keys to lowercase markers found
// in rule ids, vulnerability classes and CWE labels. Order matters.
var vulnTypeKeywords = []struct {
	vulnType string
	markers  []string
}{
	{"SQL_INJECTION", []string{"sql injection", "sql-injection", "sqli.", "-sqli", "cwe-89:", "cwe-89 "}},
	{"COMMAND_INJECTION", []string{"command injection", "command-injection", "os-command", "cwe-78:", "cwe-78 "}},
	{"PATH_TRAVERSAL", []string{"path traversal", "path-traversal", "directory traversal", "cwe-22:", "cwe-22 "}},
	{"CROSS_SITE_SCRIPTING", []string{"cross-site scripting", "cross-site-scripting", "xss", "cwe-79:", "cwe-79 "}},
	{"XML_EXTERNAL_ENTITY", []string{"xml external", "xxe", "cwe-611:", "cwe-611 "}},
	{"INSECURE_DESERIALIZATION", []string{"deserialization", "deserialisation", "cwe-502:", "cwe-502 "}},
	{"HARDCODED_CREDENTIALS", []string{"hardcoded", "hard-coded", "hardcoded-credential", "secret", "cwe-798:", "cwe-798 "}},
}

// ClassifyVulnType derives the vulnerability-type label used to pick an
// explanation template. Falls back to the rule id.
func ClassifyVulnType(checkID string, labels []string) string {
	hay := strings.ToLower(checkID + " " + strings.Join(labels, " ") + " ")
	for _, kw := range vulnTypeKeywords {
		for _, m := range kw.markers {
			if strings.Contains(hay, m) {
				return kw.vulnType
			}
		}
	}
	return checkID
}
