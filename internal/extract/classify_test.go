package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyRateManual(t *testing.T) {
	pages := []Page{{Number: 1, Text: "Base Rate Table\nTerritory 01: rate per $1000 of coverage\nRating factor schedule"}}
	got := Classify("Countrywide Rate Pages Rev 4.pdf", pages)
	assert.Equal(t, TypeRate, got.Type)
	assert.Empty(t, got.Warnings)
}

func TestClassifyUnderwritingRules(t *testing.T) {
	pages := []Page{{Number: 1, Text: "Underwriting Guidelines\nIneligible risks shall not be written.\nEligibility: frame construction only."}}
	got := Classify("UW Guidelines Manual.pdf", pages)
	assert.Equal(t, TypeRule, got.Type)
}

func TestClassifyPolicyForm(t *testing.T) {
	pages := []Page{{Number: 1, Text: "THIS ENDORSEMENT CHANGES THE POLICY. PLEASE READ IT CAREFULLY.\nInsuring Agreement\nEdition Date 08/26"}}
	got := Classify("HO 04 16 Endorsement.pdf", pages)
	assert.Equal(t, TypeForm, got.Type)
}

func TestClassifyEmptyTextIsOther(t *testing.T) {
	got := Classify("Scanned Rate Manual.pdf", []Page{{Number: 1, Text: "   "}})
	assert.Equal(t, TypeOther, got.Type)
	assert.NotEmpty(t, got.Warnings)
}

func TestClassifyNoSignalIsOther(t *testing.T) {
	got := Classify("cover letter.pdf", []Page{{Number: 1, Text: "Dear Commissioner, please find our filing attached."}})
	assert.Equal(t, TypeOther, got.Type)
}

func TestClassifyOnlyScansFirstPages(t *testing.T) {
	pages := []Page{
		{Number: 1, Text: "transmittal"},
		{Number: 2, Text: "memorandum"},
		{Number: 3, Text: "index"},
		{Number: 4, Text: "base rate base rate base rate rating plan"},
	}
	got := Classify("attachment.pdf", pages)
	assert.Equal(t, TypeOther, got.Type)
}
