package scanner

import (
	"testing"

	"github.com/CosmoTheDev/devsecwatch-worker/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOutput = `{
  "results": [
    {
      "check_id": "java.lang.security.audit.sqli.jdbc-sqli",
      "path": "./src/main/java/Dao.java",
      "start": {"line": 42, "col": 5},
      "extra": {
        "severity": "ERROR",
        "message": "Detected string concatenation in SQL",
        "lines": "stmt.executeQuery(\"SELECT * FROM u WHERE id=\" + id);",
        "metadata": {
          "confidence": "HIGH",
          "cwe": ["CWE-89: Improper Neutralization of Special Elements used in an SQL Command"],
          "cve": "CVE-2024-0001"
        }
      }
    },
    {
      "check_id": "python.lang.security.audit.subprocess-shell-true",
      "path": "app/run.py",
      "start": {"line": 7},
      "extra": {
        "severity": "WARNING",
        "message": "shell=True is dangerous",
        "lines": "subprocess.call(cmd, shell=True)",
        "metadata": {"cwe": "CWE-78: OS Command Injection", "cve": ["", "CVE-2023-9"]}
      }
    },
    {
      "check_id": "generic.style.todo",
      "path": "a.go",
      "start": {"line": 1},
      "extra": {"severity": "INFO", "message": "todo", "lines": "// TODO"}
    },
    {
      "check_id": "js.weird",
      "path": "b.js",
      "start": {"line": 3},
      "extra": {"severity": "SOMETHING", "message": "x", "lines": "x"}
    }
  ],
  "errors": []
}`

func TestParseResultsKeepsOnlyActionable(t *testing.T) {
	findings, raw, err := ParseResults([]byte(sampleOutput))
	require.NoError(t, err)
	assert.Equal(t, 4, raw)
	require.Len(t, findings, 2)

	sqli := findings[0]
	assert.Equal(t, models.SeverityCritical, sqli.Severity)
	assert.Equal(t, "src/main/java/Dao.java", sqli.FilePath)
	assert.Equal(t, 42, sqli.Line)
	assert.Equal(t, "SQL_INJECTION", sqli.VulnType)
	assert.Equal(t, "CVE-2024-0001", sqli.CVE)
	assert.InDelta(t, 0.9, sqli.Confidence, 1e-9)
	assert.Contains(t, sqli.Snippet, "executeQuery")

	cmd := findings[1]
	assert.Equal(t, models.SeverityHigh, cmd.Severity)
	assert.Equal(t, "COMMAND_INJECTION", cmd.VulnType)
	assert.Equal(t, "CVE-2023-9", cmd.CVE)
	assert.InDelta(t, 0.8, cmd.Confidence, 1e-9)

	for _, f := range findings {
		assert.True(t, f.Severity.Actionable())
	}
}

func TestParseResultsEmptyIsClean(t *testing.T) {
	findings, raw, err := ParseResults([]byte(`{"results": [], "errors": []}`))
	require.NoError(t, err)
	assert.Zero(t, raw)
	assert.Empty(t, findings)
}

func TestParseResultsMalformed(t *testing.T) {
	for name, doc := range map[string]string{
		"not json":        `{"results": [`,
		"missing results": `{"errors": []}`,
		"wrong shape":     `{"results": {"a": 1}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := ParseResults([]byte(doc))
			assert.ErrorIs(t, err, ErrMalformedOutput)
		})
	}
}

func TestClassifyVulnType(t *testing.T) {
	tests := []struct {
		checkID string
		labels  []string
		want    string
	}{
		{"javascript.express.security.audit.xss.direct-response-write", nil, "CROSS_SITE_SCRIPTING"},
		{"java.lang.security.audit.xxe.documentbuilderfactory", nil, "XML_EXTERNAL_ENTITY"},
		{"python.flask.open-redirect", []string{"Path Traversal"}, "PATH_TRAVERSAL"},
		{"java.lang.security.insecure-object", []string{"CWE-502: Deserialization of Untrusted Data"}, "INSECURE_DESERIALIZATION"},
		{"generic.secrets.security.detected-aws-key", nil, "HARDCODED_CREDENTIALS"},
		{"python.sqlite3.connect-usage", nil, "python.sqlite3.connect-usage"},
		{"go.lang.custom-rule", []string{"CWE-1000: Something Else"}, "go.lang.custom-rule"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyVulnType(tt.checkID, tt.labels), tt.checkID)
	}
}

func TestMapSeverityTable(t *testing.T) {
	assert.Equal(t, models.SeverityCritical, models.MapSeverity("ERROR"))
	assert.Equal(t, models.SeverityHigh, models.MapSeverity("WARNING"))
	assert.Equal(t, models.SeverityLow, models.MapSeverity("INFO"))
	assert.Equal(t, models.SeverityMedium, models.MapSeverity("EXPERIMENT"))
	assert.Equal(t, models.SeverityMedium, models.MapSeverity(""))
	assert.Equal(t, models.SeverityCritical, models.MapSeverity("Error"))
	assert.Equal(t, models.SeverityHigh, models.MapSeverity(" Warning "))
	assert.Equal(t, models.SeverityLow, models.MapSeverity("info"))
}
