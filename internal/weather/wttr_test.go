package weather

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

const wttrFixture = `{
  "current_condition": [
    {
      "temp_C": "15",
      "temp_F": "59",
      "FeelsLikeC": "13",
      "FeelsLikeF": "55",
      "weatherDesc": [{"value": "Cloudy"}],
      "humidity": "82",
      "pressure": "1012",
      "windspeedKmph": "13",
      "winddir16Point": "SW",
      "visibility": "10",
      "uvIndex": "4",
      "localObsDateTime": "2026-08-29 12:00 PM"
    }
  ],
  "nearest_area": [
    {
      "areaName": [{"value": "London"}],
      "country": [{"value": "United Kingdom"}],
      "region": [{"value": "City of London, Greater London"}]
    }
  ],
  "weather": [
    {
      "date": "2026-08-29",
      "maxtempC": "18", "maxtempF": "64",
      "mintempC": "11", "mintempF": "52",
      "uvIndex": "5",
      "astronomy": [{"sunrise": "06:09 AM", "sunset": "07:52 PM"}],
      "hourly": [
        {"weatherDesc": [{"value": "Mist"}]},
        {"weatherDesc": [{"value": "Mist"}]},
        {"weatherDesc": [{"value": "Cloudy"}]},
        {"weatherDesc": [{"value": "Cloudy"}]},
        {"weatherDesc": [{"value": "Partly cloudy"}]},
        {"weatherDesc": [{"value": "Sunny"}]},
        {"weatherDesc": [{"value": "Clear"}]},
        {"weatherDesc": [{"value": "Clear"}]}
      ]
    },
    {
      "date": "2026-08-30",
      "maxtempC": "20", "maxtempF": "68",
      "mintempC": "12", "mintempF": "54",
      "uvIndex": "6",
      "astronomy": [{"sunrise": "06:10 AM", "sunset": "07:50 PM"}],
      "hourly": [
        {"weatherDesc": [{"value": "Sunny"}]},
        {"weatherDesc": [{"value": "Sunny"}]},
        {"weatherDesc": [{"value": "Sunny"}]},
        {"weatherDesc": [{"value": "Sunny"}]},
        {"weatherDesc": [{"value": "Sunny"}]},
        {"weatherDesc": [{"value": "Sunny"}]},
        {"weatherDesc": [{"value": "Clear"}]},
        {"weatherDesc": [{"value": "Clear"}]}
      ]
    },
    {
      "date": "2026-08-31",
      "maxtempC": "17", "maxtempF": "63",
      "mintempC": "10", "mintempF": "50",
      "uvIndex": "3",
      "astronomy": [{"sunrise": "06:12 AM", "sunset": "07:48 PM"}],
      "hourly": [
        {"weatherDesc": [{"value": "Rain"}]},
        {"weatherDesc": [{"value": "Rain"}]},
        {"weatherDesc": [{"value": "Rain"}]},
        {"weatherDesc": [{"value": "Light rain"}]},
        {"weatherDesc": [{"value": "Light rain"}]},
        {"weatherDesc": [{"value": "Overcast"}]},
        {"weatherDesc": [{"value": "Overcast"}]},
        {"weatherDesc": [{"value": "Cloudy"}]}
      ]
    }
  ]
}`

func newWttrDouble(t *testing.T) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "j1" {
			http.Error(w, "unexpected format", http.StatusBadRequest)
			return
		}
		if r.URL.Path == "/Nowhere" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, wttrFixture)
	}))
	t.Cleanup(server.Close)
	return NewClient(WithBaseURL(server.URL))
}

func TestCurrent_WhenCityFound_ShouldMapAllFields(t *testing.T) {
	client := newWttrDouble(t)

	got, err := client.Current(context.Background(), "London")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]any{
		"city":           "London",
		"country":        "United Kingdom",
		"region":         "City of London, Greater London",
		"temperature":    "15°C (59°F)",
		"feels_like":     "13°C (55°F)",
		"description":    "Cloudy",
		"humidity":       "82%",
		"pressure":       "1012 mb",
		"wind_speed":     "13 km/h",
		"wind_direction": "SW",
		"visibility":     "10 km",
		"uv_index":       "4",
		"local_time":     "2026-08-29 12:00 PM",
	}
	for name, value := range want {
		if got[name] != value {
			t.Errorf("%s = %v, want %v", name, got[name], value)
		}
	}
	if len(got) != len(want) {
		t.Fatalf("payload has %d fields, want %d", len(got), len(want))
	}
}

func TestCurrent_WhenServiceReturnsNotFound_ShouldError(t *testing.T) {
	client := newWttrDouble(t)

	if _, err := client.Current(context.Background(), "Nowhere"); err == nil {
		t.Fatal("expected error for missing city")
	}
}

func TestCurrent_WhenServiceUnreachable_ShouldError(t *testing.T) {
	client := NewClient(WithBaseURL("http://127.0.0.1:1"))

	if _, err := client.Current(context.Background(), "London"); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestForecast_WhenDefaultDays_ShouldReturnThree(t *testing.T) {
	client := newWttrDouble(t)

	got, err := client.Forecast(context.Background(), "London", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	days, ok := got["forecast"].([]map[string]any)
	if !ok {
		t.Fatalf("forecast has unexpected shape: %T", got["forecast"])
	}
	if len(days) != 3 {
		t.Fatalf("forecast has %d days, want 3", len(days))
	}

	first := days[0]
	if first["date"] != "2026-08-29" {
		t.Fatalf("date = %v", first["date"])
	}
	if first["max_temp"] != "18°C (64°F)" || first["min_temp"] != "11°C (52°F)" {
		t.Fatalf("temps = %v / %v", first["max_temp"], first["min_temp"])
	}
	if first["description"] != "Partly cloudy" {
		t.Fatalf("description should come from the midday slot, got %v", first["description"])
	}
	if first["sunrise"] != "06:09 AM" || first["sunset"] != "07:52 PM" {
		t.Fatalf("astronomy = %v / %v", first["sunrise"], first["sunset"])
	}
	if first["uv_index"] != "5" {
		t.Fatalf("uv_index = %v", first["uv_index"])
	}
}

func TestForecast_WhenDaysRequested_ShouldClampToAvailableRange(t *testing.T) {
	client := newWttrDouble(t)

	cases := []struct {
		requested int
		want      int
	}{
		{1, 1},
		{2, 2},
		{3, 3},
		{7, 3},
		{-1, 3},
	}
	for _, tc := range cases {
		got, err := client.Forecast(context.Background(), "London", tc.requested)
		if err != nil {
			t.Fatalf("days=%d: %v", tc.requested, err)
		}
		days := got["forecast"].([]map[string]any)
		if len(days) != tc.want {
			t.Fatalf("days=%d returned %d entries, want %d", tc.requested, len(days), tc.want)
		}
	}
}

func TestCurrent_WhenResponseHasNoConditions_ShouldError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"current_condition": [], "nearest_area": [], "weather": []}`)
	}))
	t.Cleanup(server.Close)
	client := NewClient(WithBaseURL(server.URL))

	if _, err := client.Current(context.Background(), "London"); err == nil {
		t.Fatal("expected error for empty conditions")
	}
}
