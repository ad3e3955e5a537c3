package aiclient

import "testing"

func TestParseJSONInProseCleanJSON(t *testing.T) {
	text := `Here is my answer: {"category":"product","score":0.9} thanks!`
	got, err := ParseJSONInProse(text)
	if err != nil {
		t.Fatalf("ParseJSONInProse() error = %v", err)
	}
	if got.Degraded {
		t.Fatal("clean JSON should not be marked degraded")
	}
	if got.Data["category"] != "product" {
		t.Fatalf("Data = %+v, want category=product", got.Data)
	}
}

func TestParseJSONInProseTrailingComma(t *testing.T) {
	text := `{"a":1,"b":2,}`
	got, err := ParseJSONInProse(text)
	if err != nil {
		t.Fatalf("ParseJSONInProse() error = %v", err)
	}
	if !got.Degraded {
		t.Fatal("trailing-comma repair should be marked degraded")
	}
	if got.Data["a"].(float64) != 1 {
		t.Fatalf("Data = %+v, want a=1", got.Data)
	}
}

func TestParseJSONInProseSingleQuotes(t *testing.T) {
	text := `{'name': 'red shoe', 'count': 3}`
	got, err := ParseJSONInProse(text)
	if err != nil {
		t.Fatalf("ParseJSONInProse() error = %v", err)
	}
	if !got.Degraded {
		t.Fatal("single-quote repair should be marked degraded")
	}
	if got.Data["name"] != "red shoe" {
		t.Fatalf("Data = %+v, want name='red shoe'", got.Data)
	}
}

func TestParseJSONInProseMissingClosingBrace(t *testing.T) {
	text := `{"a":{"b":1}`
	got, err := ParseJSONInProse(text)
	if err != nil {
		t.Fatalf("ParseJSONInProse() error = %v", err)
	}
	if !got.Degraded {
		t.Fatal("missing-brace repair should be marked degraded")
	}
}

func TestParseJSONInProseNoJSONFallsBackToKeywords(t *testing.T) {
	text := "I think 产品展示 best, maybe 模特试穿."
	got, err := ParseJSONInProse(text)
	if err != nil {
		t.Fatalf("ParseJSONInProse() error = %v", err)
	}
	if !got.Degraded {
		t.Fatal("no-JSON text should fall back to the degraded keyword extractor")
	}
	if got.Data["rawText"] != text {
		t.Fatalf("Data[rawText] = %v, want original text", got.Data["rawText"])
	}
}

func TestLargestBalancedBracesPicksLongest(t *testing.T) {
	text := `noise {"a":1} more noise {"a":1,"nested":{"b":2}} trailing`
	got := largestBalancedBraces(text)
	want := `{"a":1,"nested":{"b":2}}`
	if got != want {
		t.Fatalf("largestBalancedBraces() = %q, want %q", got, want)
	}
}

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status              int
		retryable, permanent bool
	}{
		{200, false, false},
		{404, false, true},
		{429, true, false},
		{500, true, false},
		{503, true, false},
	}
	for _, c := range cases {
		retryable, permanent := classifyStatus(c.status)
		if retryable != c.retryable || permanent != c.permanent {
			t.Errorf("classifyStatus(%d) = (%v,%v), want (%v,%v)", c.status, retryable, permanent, c.retryable, c.permanent)
		}
	}
}
