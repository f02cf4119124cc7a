package ctgov

import (
	"strings"
	"time"

	"github.com/trialscope/sitescope/internal/model"
)

// Wire types for the v2 /studies response. Only the protocolSection
// modules the pipeline consumes are mapped.

type studiesResponse struct {
	Studies       []study `json:"studies"`
	NextPageToken string  `json:"nextPageToken"`
}

type study struct {
	ProtocolSection protocolSection `json:"protocolSection"`
}

type protocolSection struct {
	Identification    identificationModule    `json:"identificationModule"`
	Status            statusModule            `json:"statusModule"`
	Design            designModule            `json:"designModule"`
	Conditions        conditionsModule        `json:"conditionsModule"`
	ArmsInterventions armsInterventionsModule `json:"armsInterventionsModule"`
	Sponsor           sponsorModule           `json:"sponsorCollaboratorsModule"`
	ContactsLocations contactsLocationsModule `json:"contactsLocationsModule"`
}

type identificationModule struct {
	NCTID      string `json:"nctId"`
	BriefTitle string `json:"briefTitle"`
}

type statusModule struct {
	OverallStatus        string      `json:"overallStatus"`
	StartDateStruct      *dateStruct `json:"startDateStruct"`
	CompletionDateStruct *dateStruct `json:"completionDateStruct"`
	LastUpdatePostDate   *dateStruct `json:"lastUpdatePostDateStruct"`
	EnrollmentInfo       *enrollment `json:"enrollmentInfo"`
}

type dateStruct struct {
	Date string `json:"date"`
}

type enrollment struct {
	Count int `json:"count"`
}

type designModule struct {
	StudyType string   `json:"studyType"`
	Phases    []string `json:"phases"`
}

type conditionsModule struct {
	Conditions []string `json:"conditions"`
}

type armsInterventionsModule struct {
	Interventions []intervention `json:"interventions"`
}

type intervention struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type sponsorModule struct {
	LeadSponsor leadSponsor `json:"leadSponsor"`
}

type leadSponsor struct {
	Name string `json:"name"`
}

type contactsLocationsModule struct {
	Locations []location `json:"locations"`
}

type location struct {
	Facility string    `json:"facility"`
	City     string    `json:"city"`
	State    string    `json:"state"`
	Country  string    `json:"country"`
	Zip      string    `json:"zip"`
	Contacts []contact `json:"contacts"`
}

type contact struct {
	Name string `json:"name"`
}

// phaseNames maps the registry phase enum onto the display vocabulary
// used by the rank map.
var phaseNames = map[string]string{
	"EARLY_PHASE1": "Early Phase 1",
	"PHASE1":       "Phase 1",
	"PHASE2":       "Phase 2",
	"PHASE3":       "Phase 3",
	"PHASE4":       "Phase 4",
	"NA":           "N/A",
}

// parsePhases joins the enum list into a single phase string, combined
// phases separated by a slash ("Phase 1/Phase 2").
func parsePhases(phases []string) string {
	var names []string
	for _, p := range phases {
		if name, ok := phaseNames[strings.ToUpper(strings.TrimSpace(p))]; ok {
			names = append(names, name)
		} else if p != "" {
			names = append(names, p)
		}
	}
	return strings.Join(names, "/")
}

// parseDate accepts the registry's year, year-month and full date forms.
func parseDate(ds *dateStruct) *time.Time {
	if ds == nil || ds.Date == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, ds.Date); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// parseStudy flattens a protocolSection into a TrialRecord. ok is
// false when the study has no NCT ID and must be skipped.
func parseStudy(s study) (model.TrialRecord, bool) {
	p := s.ProtocolSection
	if p.Identification.NCTID == "" {
		return model.TrialRecord{}, false
	}

	record := model.TrialRecord{
		NCTID:          p.Identification.NCTID,
		Title:          p.Identification.BriefTitle,
		Status:         model.ParseStatus(p.Status.OverallStatus),
		StudyType:      p.Design.StudyType,
		Phase:          parsePhases(p.Design.Phases),
		Conditions:     p.Conditions.Conditions,
		Sponsor:        p.Sponsor.LeadSponsor.Name,
		StartDate:      parseDate(p.Status.StartDateStruct),
		CompletionDate: parseDate(p.Status.CompletionDateStruct),
		LastUpdateDate: parseDate(p.Status.LastUpdatePostDate),
	}
	if p.Status.EnrollmentInfo != nil {
		record.Enrollment = p.Status.EnrollmentInfo.Count
	}
	for _, iv := range p.ArmsInterventions.Interventions {
		if iv.Type != "" {
			record.InterventionTypes = append(record.InterventionTypes, iv.Type)
		}
	}

	for _, loc := range p.ContactsLocations.Locations {
		lr := model.LocationRecord{
			Facility: loc.Facility,
			City:     loc.City,
			State:    loc.State,
			Country:  loc.Country,
			ZipCode:  loc.Zip,
		}
		for _, c := range loc.Contacts {
			if c.Name != "" {
				lr.Investigators = append(lr.Investigators, c.Name)
			}
		}
		record.Locations = append(record.Locations, lr)
	}

	return record, true
}
