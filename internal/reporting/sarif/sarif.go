// Package sarif holds the subset of the SARIF 2.1.0 object model wizprobe
// emits. Pointers mark optional fields; required fields use value types.
package sarif

type Log struct {
	Version string `json:"version"`
	Schema  string `json:"$schema"`
	Runs    []*Run `json:"runs"`
}

type Run struct {
	Tool              *Tool              `json:"tool"`
	AutomationDetails *AutomationDetails `json:"automationDetails,omitempty"`
	Invocations       []*Invocation      `json:"invocations,omitempty"`
	Results           []*Result          `json:"results"`
}

type Tool struct {
	Driver *ToolComponent `json:"driver"`
}

type ToolComponent struct {
	Name           string                 `json:"name"`
	Version        *string                `json:"version,omitempty"`
	InformationURI *string                `json:"informationUri,omitempty"`
	Rules          []*ReportingDescriptor `json:"rules,omitempty"`
}

// AutomationDetails identifies one run among many.
type AutomationDetails struct {
	ID string `json:"id"`
}

type Invocation struct {
	ExecutionSuccessful bool      `json:"executionSuccessful"`
	StartTimeUTC        string    `json:"startTimeUtc,omitempty"`
	EndTimeUTC          string    `json:"endTimeUtc,omitempty"`
	Notifications       []*Notify `json:"toolExecutionNotifications,omitempty"`
}

// Notify is a toolExecutionNotification; wizprobe uses them for warnings.
type Notify struct {
	Level   Level    `json:"level"`
	Message *Message `json:"message"`
}

type ReportingDescriptor struct {
	ID                   string                    `json:"id"`
	Name                 *string                   `json:"name,omitempty"`
	ShortDescription     *MultiformatMessageString `json:"shortDescription,omitempty"`
	FullDescription      *MultiformatMessageString `json:"fullDescription,omitempty"`
	DefaultConfiguration *Configuration            `json:"defaultConfiguration,omitempty"`
	Properties           PropertyBag               `json:"properties,omitempty"`
}

type Configuration struct {
	Level Level `json:"level"`
}

type Result struct {
	RuleID     string      `json:"ruleId"`
	RuleIndex  int         `json:"ruleIndex"`
	Message    *Message    `json:"message"`
	Level      Level       `json:"level,omitempty"`
	Locations  []*Location `json:"locations,omitempty"`
	Properties PropertyBag `json:"properties,omitempty"`
}

type Location struct {
	PhysicalLocation *PhysicalLocation  `json:"physicalLocation,omitempty"`
	LogicalLocations []*LogicalLocation `json:"logicalLocations,omitempty"`
}

type PhysicalLocation struct {
	ArtifactLocation *ArtifactLocation `json:"artifactLocation,omitempty"`
}

type ArtifactLocation struct {
	URI *string `json:"uri,omitempty"`
}

// LogicalLocation names the wizard step (and field) a result belongs to.
type LogicalLocation struct {
	Name               string `json:"name"`
	FullyQualifiedName string `json:"fullyQualifiedName,omitempty"`
	Kind               string `json:"kind,omitempty"`
}

type Message struct {
	Text *string `json:"text,omitempty"`
}

type MultiformatMessageString struct {
	Text     *string `json:"text"`
	Markdown *string `json:"markdown,omitempty"`
}

type PropertyBag map[string]interface{}

type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelNote    Level = "note"
)
