package architecture

import (
	"strings"

	"gocka/domain/core"
)

// Family is the closed set of model architectures the probing pipeline knows how to handle
type Family string

const (
	FamilyT5         Family = "t5"
	FamilyEleutherAI Family = "eleutherai"
	FamilyGPT        Family = "gpt"
	FamilyOPT        Family = "opt"
	FamilyRoBERTa    Family = "roberta"
	FamilyBERT       Family = "bert"
	FamilyLLaMA      Family = "llama"
	FamilyMistral    Family = "mistral"
	FamilyBLOOM      Family = "bloom"
	FamilyStableLM   Family = "stablelm"
	FamilyMPT        Family = "mpt"
	FamilyRedPajama  Family = "redpajama"
	FamilyFalcon     Family = "falcon"
)

// ProbeKind names the probe routine a family is scored with
type ProbeKind string

const (
	ProbeGPT       ProbeKind = "gpt"
	ProbeBERT      ProbeKind = "bert"
	ProbeLLaMA     ProbeKind = "llama"
	ProbeT5        ProbeKind = "t5"
	ProbeStableLM  ProbeKind = "stablelm"
	ProbeMPT       ProbeKind = "mpt"
	ProbeRedPajama ProbeKind = "redpajama"
	ProbeFalcon    ProbeKind = "falcon"
)

type rule struct {
	keywords []string
	family   Family
	probe    ProbeKind
}

// rules are evaluated in order; more specific names come before the
// substrings they contain ("gpt-neo" before "gpt", "roberta" before "bert").
var rules = []rule{
	{[]string{"t5"}, FamilyT5, ProbeT5},
	{[]string{"gpt-neo", "gpt-j", "pythia"}, FamilyEleutherAI, ProbeGPT},
	{[]string{"gpt"}, FamilyGPT, ProbeGPT},
	{[]string{"opt"}, FamilyOPT, ProbeGPT},
	{[]string{"roberta"}, FamilyRoBERTa, ProbeBERT},
	{[]string{"bert"}, FamilyBERT, ProbeBERT},
	{[]string{"llama"}, FamilyLLaMA, ProbeLLaMA},
	{[]string{"mistral"}, FamilyMistral, ProbeLLaMA},
	{[]string{"bloom"}, FamilyBLOOM, ProbeGPT},
	{[]string{"stablelm"}, FamilyStableLM, ProbeStableLM},
	{[]string{"mpt"}, FamilyMPT, ProbeMPT},
	{[]string{"redpajama"}, FamilyRedPajama, ProbeRedPajama},
	{[]string{"falcon"}, FamilyFalcon, ProbeFalcon},
}

// Classify maps a model name (hub id or local path) to its architecture family.
func Classify(modelName string) (Family, error) {
	r, ok := match(modelName)
	if !ok {
		return "", core.NewUnsupportedArchitectureError(modelName)
	}
	return r.family, nil
}

// ProbeFor returns the probe routine used for the model.
func ProbeFor(modelName string) (ProbeKind, error) {
	r, ok := match(modelName)
	if !ok {
		return "", core.NewUnsupportedArchitectureError(modelName)
	}
	return r.probe, nil
}

func match(modelName string) (rule, bool) {
	name := strings.ToLower(modelName)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(name, kw) {
				return r, true
			}
		}
	}
	return rule{}, false
}

// MaskSuffix is appended to the context for masked language models.
func (f Family) MaskSuffix() string {
	switch f {
	case FamilyRoBERTa:
		return " <mask>."
	case FamilyBERT:
		return " [MASK]."
	default:
		return ""
	}
}

func (f Family) String() string { return string(f) }
