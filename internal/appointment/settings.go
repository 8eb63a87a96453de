package appointment

import "time"

// Settings carries clinic-wide scheduling parameters. It is passed in
// explicitly; nothing in this package reads configuration on its own.
type Settings struct {
	ClinicHours        WorkingHours
	SlotStep           time.Duration
	SuggestionLimit    int
	SearchHorizonDays  int
	PractitionerFanout int
	Location           *time.Location
}

func DefaultSettings() Settings {
	return Settings{
		ClinicHours:        WorkingHours{Open: NewTimeOfDay(9, 0), Close: NewTimeOfDay(17, 0)},
		SlotStep:           DefaultSlotStep,
		SuggestionLimit:    5,
		SearchHorizonDays:  14,
		PractitionerFanout: 8,
		Location:           time.Local,
	}
}

// withDefaults fills zero fields so a partially built Settings still works.
func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if !s.ClinicHours.Valid() {
		s.ClinicHours = d.ClinicHours
	}
	if s.SlotStep < time.Minute {
		s.SlotStep = d.SlotStep
	}
	if s.SuggestionLimit <= 0 {
		s.SuggestionLimit = d.SuggestionLimit
	}
	if s.SearchHorizonDays <= 0 {
		s.SearchHorizonDays = d.SearchHorizonDays
	}
	if s.PractitionerFanout <= 0 {
		s.PractitionerFanout = d.PractitionerFanout
	}
	if s.Location == nil {
		s.Location = d.Location
	}
	return s
}

// HoursFor falls back to clinic hours when the practitioner has none stored.
func (s Settings) HoursFor(p Practitioner) WorkingHours {
	if p.WorkingHours.IsZero() || !p.WorkingHours.Valid() {
		return s.ClinicHours
	}
	return p.WorkingHours
}
