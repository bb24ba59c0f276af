// Package prompt builds the prompt sent to the LLM for the placement database:
// the fixed schema description, the accuracy-level tuning instruction and the
// salary-normalized question.
package prompt

import (
	"strings"
)

// AccuracyLevel controls how literally the model should read the question.
type AccuracyLevel string

const (
	Precise  AccuracyLevel = "precise"
	Balanced AccuracyLevel = "balanced"
	Creative AccuracyLevel = "creative"
)

// DefaultAccuracy is preselected on the home page.
const DefaultAccuracy = Balanced

// ExplanationRequest is appended when the explanation view is enabled.
const ExplanationRequest = "Explain the logic of your SQL too."

var levelLabels = map[AccuracyLevel]string{
	Precise:  "Precise (100%)",
	Balanced: "Balanced(50%-90%)",
	Creative: "Creative (<50%)",
}

var tuningInstructions = map[AccuracyLevel]string{
	Precise: "ONLY generate SQL that directly matches the question. " +
		"DO NOT make any assumptions, DO NOT infer or simplify. " +
		"Stick to the exact words in the question.",
	Balanced: "Interpret the question with moderate flexibility. " +
		"You may infer straightforward relationships, but do not guess. " +
		"Make the SQL slightly broader if it improves clarity.",
	Creative: "Be imaginative and exploratory. You can freely assume relationships or missing conditions. " +
		"Reframe or reinterpret vague questions. " +
		"Even if the question is unclear or partial, still try to generate a reasonable SQL query that adds your own interpretation.",
}

// AccuracyLevels returns the levels in selector order.
func AccuracyLevels() []AccuracyLevel {
	return []AccuracyLevel{Precise, Balanced, Creative}
}

// Label returns the selector label, or "" for an unknown level.
func (l AccuracyLevel) Label() string {
	return levelLabels[l]
}

// TuningInstruction returns the instruction for the level. Unknown or empty
// levels have no instruction.
func (l AccuracyLevel) TuningInstruction() string {
	return tuningInstructions[l]
}

// ParseAccuracyLevel accepts a level name ("precise") or its selector label
// ("Precise (100%)").
func ParseAccuracyLevel(raw string) (AccuracyLevel, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, level := range AccuracyLevels() {
		if strings.EqualFold(trimmed, string(level)) || trimmed == level.Label() {
			return level, true
		}
	}
	return "", false
}

// Parts is the ordered list of prompt parts sent to the model.
type Parts []string

// Config selects the optional prompt features.
type Config struct {
	IncludeTuning             bool
	IncludeExplanationRequest bool
}

// Builder assembles prompt parts. The zero value builds the strict prompt:
// schema description followed by the bare question.
type Builder struct {
	Config Config
}

// Build returns [SchemaPrompt, body]. The question is expected to be
// normalized already (see NormalizeSalary).
func (b Builder) Build(question string, level AccuracyLevel) Parts {
	lines := []string{question}
	if b.Config.IncludeTuning {
		lines = append(lines, level.TuningInstruction())
	}
	if b.Config.IncludeExplanationRequest {
		lines = append(lines, ExplanationRequest)
	}
	return Parts{SchemaPrompt, strings.Join(lines, "\n")}
}

// SchemaPrompt describes the placement database to the model.
const SchemaPrompt = `
You are an expert in converting English questions to SQL queries!
The SQL database contains the following tables and columns:

1 **STUDENT Table**
   - student_id (Primary Key)
   - name
   - branch
   - skills
   - cgpa
   - graduation_year

2 **COMPANIES Table**
   - company_id (Primary Key)
   - name
   - sector
   - visit_month

3 **OFFERS Table**
   - offer_id (Primary Key)
   - student_id (Foreign Key → STUDENT.student_id)
   - company_id (Foreign Key → COMPANIES.company_id)
   - package_lpa
   - job_role

**Examples:**
- "How many students are in the database?"
  **SQL Query:** SELECT COUNT(*) FROM student;

- "List all students in the Computer Science branch."
  **SQL Query:** SELECT * FROM student WHERE branch = 'CSE';

- "Find companies in the Finance sector."
  **SQL Query:** SELECT * FROM companies WHERE sector = 'Finance';

- "Show job offers where the package is more than 20 LPA."
  **SQL Query:** SELECT * FROM offers WHERE package_lpa > 20;

- "Find all students who have offers in Google."
  **SQL Query:**
    SELECT s.name, o.job_role, o.package_lpa
    FROM student s
    JOIN offers o ON s.student_id = o.student_id
    JOIN companies c ON o.company_id = c.company_id
    WHERE c.name = 'Google';

**Important Rules:**
- The SQL query should NOT include ` + "```sql" + ` formatting or backticks.
- The SQL query should be properly formatted for PostgreSQL.
`
