package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNewCatalog_WhenNamesUnique_ShouldIndexAll(t *testing.T) {
	cat, err := NewCatalog([]ToolDescriptor{
		{Name: "get_weather", Description: "current conditions"},
		{Name: "get_weather_forecast", Description: "multi-day forecast"},
	})
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	if cat.Len() != 2 {
		t.Errorf("want 2 tools, got %d", cat.Len())
	}
	if !cat.Has("get_weather") {
		t.Error("want get_weather present")
	}
	d, ok := cat.Get("get_weather_forecast")
	if !ok || d.Description != "multi-day forecast" {
		t.Errorf("Get returned %+v, ok=%v", d, ok)
	}
	names := cat.Names()
	if names[0] != "get_weather" || names[1] != "get_weather_forecast" {
		t.Errorf("fetch order not preserved: %v", names)
	}
}

func TestNewCatalog_WhenDuplicateName_ShouldReturnProtocolError(t *testing.T) {
	_, err := NewCatalog([]ToolDescriptor{
		{Name: "get_weather"},
		{Name: "get_weather"},
	})
	if !errors.Is(err, ErrProtocol) {
		t.Errorf("want ErrProtocol, got %v", err)
	}
}

func TestNewCatalog_WhenEmptyName_ShouldReturnProtocolError(t *testing.T) {
	_, err := NewCatalog([]ToolDescriptor{{Name: ""}})
	if !errors.Is(err, ErrProtocol) {
		t.Errorf("want ErrProtocol, got %v", err)
	}
}

func TestCatalog_Get_WhenAbsent_ShouldReturnFalse(t *testing.T) {
	cat, _ := NewCatalog(nil)
	if _, ok := cat.Get("missing"); ok {
		t.Error("want ok=false for missing tool")
	}
}

func TestToolDescriptor_RequiredParams(t *testing.T) {
	d := ToolDescriptor{InputSchema: json.RawMessage(`{"type":"object","required":["city","days"]}`)}
	got := d.RequiredParams()
	if len(got) != 2 || got[0] != "city" || got[1] != "days" {
		t.Errorf("RequiredParams = %v", got)
	}
	if got := (ToolDescriptor{InputSchema: json.RawMessage("not json")}).RequiredParams(); got != nil {
		t.Errorf("want nil for invalid schema, got %v", got)
	}
}

func TestToolResult_OK(t *testing.T) {
	if !SuccessResult(map[string]string{"temperature": "15°C"}).OK() {
		t.Error("success result should be OK")
	}
	if FailureResult(FailRemote, "city not found").OK() {
		t.Error("failure result should not be OK")
	}
}

func TestFlattenFields_ShouldStringifyScalarsAndNest(t *testing.T) {
	var payload map[string]any
	raw := []byte(`{"temperature":"15°C","uv_index":4,"cloudy":true,"gap":null,"forecast":[{"date":"2026-08-29"}]}`)
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got := FlattenFields(payload)
	if got["temperature"] != "15°C" {
		t.Errorf("temperature = %q", got["temperature"])
	}
	if got["uv_index"] != "4" {
		t.Errorf("uv_index = %q", got["uv_index"])
	}
	if got["cloudy"] != "true" {
		t.Errorf("cloudy = %q", got["cloudy"])
	}
	if got["gap"] != "" {
		t.Errorf("gap = %q", got["gap"])
	}
	if got["forecast"] != `[{"date":"2026-08-29"}]` {
		t.Errorf("forecast = %q", got["forecast"])
	}
}

func TestSortedFieldNames_ShouldBeStable(t *testing.T) {
	fields := map[string]string{"wind": "10", "temperature": "15", "humidity": "80"}
	first := SortedFieldNames(fields)
	second := SortedFieldNames(fields)
	want := []string{"humidity", "temperature", "wind"}
	for i, name := range want {
		if first[i] != name || second[i] != name {
			t.Fatalf("want %v, got %v then %v", want, first, second)
		}
	}
}

func TestOutcomeConstructors(t *testing.T) {
	a := Answered("hello")
	if a.Kind != OutcomeAnswered || a.Answer != "hello" {
		t.Errorf("Answered: %+v", a)
	}
	req := &ToolCallRequest{Name: "get_weather", Arguments: map[string]any{"city": "London"}}
	tc := ResolvedToolCall(req)
	if tc.Kind != OutcomeToolCall || tc.Request != req {
		t.Errorf("ResolvedToolCall: %+v", tc)
	}
	d := Declined("no credential")
	if d.Kind != OutcomeDeclined || d.Reason != "no credential" {
		t.Errorf("Declined: %+v", d)
	}
}
