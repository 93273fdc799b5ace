package dispatch

import (
	"math"
	"sort"

	"medilink/models"
)

// Ranker orders candidate doctors for a request. Ranking is recomputed at
// every escalation step from a fresh availability snapshot, because the pool
// changes between offers.
type Ranker struct{}

// defaultResponseSeconds stands in for doctors with no answer history yet.
const defaultResponseSeconds = 60.0

// priorityFactor scales the response-time estimate: the more urgent the
// request, the more proximity dominates over historical responsiveness.
func priorityFactor(p models.Priority) float64 {
	switch p {
	case models.PriorityCritical:
		return 0.25
	case models.PriorityHigh:
		return 0.5
	case models.PriorityMedium:
		return 1.0
	default:
		return 1.5
	}
}

// responseEstimate is the priority-adjusted seconds we expect this doctor to
// take to answer, with a distance penalty when both sides share a location.
func responseEstimate(d models.DoctorAvailability, req *models.EmergencyRequest) float64 {
	base := d.AvgResponseSeconds
	if base <= 0 {
		base = defaultResponseSeconds
	}
	est := base * priorityFactor(req.Priority)
	if req.Location != nil && d.Location != nil {
		est += haversine(req.Location.Lat(), req.Location.Lon(), d.Location.Lat(), d.Location.Lon()) * 2.0
	}
	return est
}

// Rank returns the snapshot ordered by (specialization match desc,
// response-time estimate asc, rating desc, doctor id asc). The id tie-break
// makes the ordering fully deterministic. Doctors in the exclude set are
// dropped entirely.
func (Ranker) Rank(req *models.EmergencyRequest, snapshot []models.DoctorAvailability, exclude map[string]struct{}) []models.DoctorAvailability {
	type scored struct {
		doctor   models.DoctorAvailability
		matches  int
		estimate float64
	}

	wanted := TriageSpecializations(req.Symptoms)

	var candidates []scored
	for _, d := range snapshot {
		if _, skip := exclude[d.DoctorID]; skip {
			continue
		}
		candidates = append(candidates, scored{
			doctor:   d,
			matches:  d.MatchesAny(wanted),
			estimate: responseEstimate(d, req),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.matches != b.matches {
			return a.matches > b.matches
		}
		if a.estimate != b.estimate {
			return a.estimate < b.estimate
		}
		if a.doctor.Rating != b.doctor.Rating {
			return a.doctor.Rating > b.doctor.Rating
		}
		return a.doctor.DoctorID < b.doctor.DoctorID
	})

	ranked := make([]models.DoctorAvailability, len(candidates))
	for i, c := range candidates {
		ranked[i] = c.doctor
	}
	return ranked
}

// haversine calculates the great-circle distance (in km) between two lat/lon points.
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371
	dLat := (lat2 - lat1) * (math.Pi / 180)
	dLon := (lon2 - lon1) * (math.Pi / 180)
	lat1Rad := lat1 * (math.Pi / 180)
	lat2Rad := lat2 * (math.Pi / 180)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
