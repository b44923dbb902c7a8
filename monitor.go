package transitlake

import (
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/transitlake/transitlake/storage"
)

var monitorTemplate = template.Must(template.New("monitor").Parse(`<!DOCTYPE html>
<html>
<head>
<title>Monitor {{.OperationDay}}</title>
<style>
body { font-family: sans-serif; }
table { border-collapse: collapse; }
th, td { border: 1px solid #999; padding: 2px 8px; text-align: left; }
tr.realtime td { background-color: #dfd; }
</style>
</head>
<body>
<h1>Operation day {{.OperationDay}}</h1>
<p>{{.RealtimeCount}} of {{.TotalCount}} trips with realtime data</p>
{{if .Alerts}}
<h2>Alerts</h2>
<table>
<tr>
<th>ID</th><th>Cause</th><th>Effect</th><th>Severity</th><th>Text</th>
</tr>
{{range .Alerts}}
<tr>
<td>{{.ID}}</td>
<td>{{.Cause}}</td>
<td>{{.Effect}}</td>
<td>{{.Severity}}</td>
<td>{{.Header}}</td>
</tr>
{{end}}
</table>
{{end}}
<h2>Trips</h2>
<table>
<tr>
<th>Route</th><th>Trip</th><th>Headsign</th><th>Dir</th>
<th>Start Stop</th><th>Start Time</th><th>Realtime</th><th>Last Update</th>
</tr>
{{range .Trips}}
<tr{{if .RealtimeAvailable}} class="realtime"{{end}}>
<td>{{.RouteShortName}}</td>
<td>{{.TripID}}</td>
<td>{{.TripHeadsign}}</td>
<td>{{.DirectionID}}</td>
<td>{{.StartStopName}}</td>
<td>{{.StartTime}}</td>
<td>{{if .RealtimeAvailable}}yes{{else}}no{{end}}</td>
<td>{{if .RealtimeLastUpdate}}{{.RealtimeLastUpdate.Format "15:04:05"}}{{end}}</td>
</tr>
{{end}}
</table>
</body>
</html>
`))

type monitorPage struct {
	OperationDay  string
	TotalCount    int
	RealtimeCount int
	Alerts        []monitorAlert
	Trips         []*storage.MonitorTrip
}

type monitorAlert struct {
	ID       string
	Cause    string
	Effect   string
	Severity string
	Header   string
}

type monitorRow struct {
	OperationDay       string     `json:"operation_day"`
	AgencyID           string     `json:"agency_id"`
	RouteID            string     `json:"route_id"`
	RouteShortName     string     `json:"route_short_name"`
	TripID             string     `json:"trip_id"`
	TripHeadsign       string     `json:"trip_headsign"`
	DirectionID        int8       `json:"direction_id"`
	StartStopID        string     `json:"start_stop_id"`
	StartStopName      string     `json:"start_stop_name"`
	StartTime          string     `json:"start_time"`
	RealtimeAvailable  bool       `json:"realtime_available"`
	RealtimeLastUpdate *time.Time `json:"realtime_last_update"`
}

// handleMonitor renders the operation day overview. Query params:
// d=YYYYMMDD picks the day, r restricts to trips with realtime rows,
// l filters by route_id, f=json switches off the HTML view.
func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("d")
	if date == "" {
		date = s.now().In(s.loc).Format("20060102")
	}
	if _, err := time.Parse("20060102", date); err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	trips, err := s.reader.MonitorTrips(date)
	if err != nil {
		s.logger.Error("querying monitor trips failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	realtimeOnly := r.URL.Query().Has("r")
	routeFilter := r.URL.Query().Get("l")

	filtered := []*storage.MonitorTrip{}
	realtimeCount := 0
	for _, t := range trips {
		if realtimeOnly && !t.RealtimeAvailable {
			continue
		}
		if routeFilter != "" && t.RouteID != routeFilter {
			continue
		}
		if t.RealtimeAvailable {
			realtimeCount++
		}
		filtered = append(filtered, t)
	}

	if r.URL.Query().Get("f") == FormatJSON {
		rows := make([]*monitorRow, 0, len(filtered))
		for _, t := range filtered {
			rows = append(rows, &monitorRow{
				OperationDay:       t.OperationDay,
				AgencyID:           t.AgencyID,
				RouteID:            t.RouteID,
				RouteShortName:     t.RouteShortName,
				TripID:             t.TripID,
				TripHeadsign:       t.TripHeadsign,
				DirectionID:        t.DirectionID,
				StartStopID:        t.StartStopID,
				StartStopName:      t.StartStopName,
				StartTime:          t.StartTime,
				RealtimeAvailable:  t.RealtimeAvailable,
				RealtimeLastUpdate: t.RealtimeLastUpdate,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rows); err != nil {
			s.logger.Error("encoding monitor rows failed", zap.Error(err))
		}
		return
	}

	alerts, _, _, err := s.reader.ServiceAlerts()
	if err != nil {
		s.logger.Error("querying service alerts failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	alertRows := make([]monitorAlert, 0, len(alerts))
	for _, a := range alerts {
		alertRows = append(alertRows, monitorAlert{
			ID:       a.ID,
			Cause:    stringOrEmpty(a.Cause),
			Effect:   stringOrEmpty(a.Effect),
			Severity: stringOrEmpty(a.SeverityLevel),
			Header:   stringOrEmpty(a.HeaderText),
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = monitorTemplate.Execute(w, &monitorPage{
		OperationDay:  date,
		TotalCount:    len(filtered),
		RealtimeCount: realtimeCount,
		Alerts:        alertRows,
		Trips:         filtered,
	})
	if err != nil {
		s.logger.Error("rendering monitor failed", zap.Error(err))
	}
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
