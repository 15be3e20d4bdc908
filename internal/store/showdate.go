package store

import (
	"strconv"
	"time"

	"showsync/internal/model"
)

// ShowDateFields encodes the derived fields of sd for a FieldStore.
func ShowDateFields(sd model.ShowDate, loc *time.Location) map[string]string {
	return map[string]string{
		model.FieldUUID:        sd.UUID,
		model.FieldDate:        sd.Start.In(loc).Format(model.DateLayout),
		model.FieldTuxedoURL:   sd.TuxedoURL,
		model.FieldVenueID:     sd.VenueID,
		model.FieldIsPublished: strconv.FormatBool(sd.IsPublished),
		model.FieldSoldOut:     strconv.FormatBool(sd.SoldOut),
		model.FieldSchoolOnly:  strconv.FormatBool(sd.SchoolOnly),
		model.FieldShow:        strconv.FormatUint(sd.ShowID, 10),
	}
}

// ShowDateFromRecord decodes a show_date record and its fields. Missing or
// malformed fields are left zero; shells written without field storage
// decode with only the record columns set.
func ShowDateFromRecord(rec Record, fields map[string]string, loc *time.Location) model.ShowDate {
	sd := model.ShowDate{
		ID:          rec.ID,
		UUID:        rec.Slug,
		Title:       rec.Title,
		Status:      rec.Status,
		TuxedoURL:   fields[model.FieldTuxedoURL],
		VenueID:     fields[model.FieldVenueID],
		IsPublished: parseBool(fields[model.FieldIsPublished]),
		SoldOut:     parseBool(fields[model.FieldSoldOut]),
		SchoolOnly:  parseBool(fields[model.FieldSchoolOnly]),
	}
	if v := fields[model.FieldUUID]; v != "" {
		sd.UUID = v
	}
	if v := fields[model.FieldDate]; v != "" {
		if t, err := time.ParseInLocation(model.DateLayout, v, loc); err == nil {
			sd.Start = t
		}
	}
	if v := fields[model.FieldShow]; v != "" {
		sd.ShowID, _ = strconv.ParseUint(v, 10, 64)
	}
	return sd
}

// ShowFromRecord decodes a show record and its fields.
func ShowFromRecord(rec Record, fields map[string]string) model.Show {
	return model.Show{
		ID:           rec.ID,
		Title:        rec.Title,
		TuxedoShowID: fields[model.FieldTuxedoShowID],
		Status:       rec.Status,
	}
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}
