// Package catalog declares which tables the filter language can reach and
// how they relate to each other.
package catalog

import (
	"fmt"
	"time"

	"github.com/noah-isme/acoustic-workbench-api/internal/filter"
	"github.com/noah-isme/acoustic-workbench-api/internal/models"
)

// Resource names served by the filter endpoints.
const (
	Projects        = "projects"
	Sites           = "sites"
	AudioRecordings = "audio_recordings"
	AudioEvents     = "audio_events"
	Tags            = "tags"
	Harvests        = "harvests"
	HarvestItems    = "harvest_items"
)

var (
	projectsTable = filter.NewTable("projects", map[string]filter.ColumnType{
		"id":          filter.TypeInteger,
		"name":        filter.TypeString,
		"description": filter.TypeText,
		"creator_id":  filter.TypeInteger,
		"created_at":  filter.TypeDateTime,
		"updated_at":  filter.TypeDateTime,
	})
	sitesTable = filter.NewTable("sites", map[string]filter.ColumnType{
		"id":          filter.TypeInteger,
		"name":        filter.TypeString,
		"description": filter.TypeText,
		"tzinfo_tz":   filter.TypeString,
		"latitude":    filter.TypeDecimal,
		"longitude":   filter.TypeDecimal,
		"creator_id":  filter.TypeInteger,
		"created_at":  filter.TypeDateTime,
		"updated_at":  filter.TypeDateTime,
	})
	projectsSitesTable = filter.NewTable("projects_sites", map[string]filter.ColumnType{
		"project_id": filter.TypeInteger,
		"site_id":    filter.TypeInteger,
	})
	audioRecordingsTable = filter.NewTable("audio_recordings", map[string]filter.ColumnType{
		"id":                  filter.TypeInteger,
		"uuid":                filter.TypeUUID,
		"site_id":             filter.TypeInteger,
		"uploader_id":         filter.TypeInteger,
		"creator_id":          filter.TypeInteger,
		"recorded_date":       filter.TypeDateTime,
		"recorded_utc_offset": filter.TypeString,
		"duration_seconds":    filter.TypeDecimal,
		"sample_rate_hertz":   filter.TypeInteger,
		"channels":            filter.TypeInteger,
		"bit_rate_bps":        filter.TypeInteger,
		"media_type":          filter.TypeString,
		"data_length_bytes":   filter.TypeInteger,
		"file_hash":           filter.TypeString,
		"status":              filter.TypeString,
		"original_file_name":  filter.TypeString,
		"notes":               filter.TypeText,
		"created_at":          filter.TypeDateTime,
		"updated_at":          filter.TypeDateTime,
	})
	audioEventsTable = filter.NewTable("audio_events", map[string]filter.ColumnType{
		"id":                   filter.TypeInteger,
		"audio_recording_id":   filter.TypeInteger,
		"start_time_seconds":   filter.TypeDecimal,
		"end_time_seconds":     filter.TypeDecimal,
		"low_frequency_hertz":  filter.TypeDecimal,
		"high_frequency_hertz": filter.TypeDecimal,
		"is_reference":         filter.TypeBoolean,
		"creator_id":           filter.TypeInteger,
		"created_at":           filter.TypeDateTime,
		"updated_at":           filter.TypeDateTime,
	})
	taggingsTable = filter.NewTable("taggings", map[string]filter.ColumnType{
		"id":             filter.TypeInteger,
		"audio_event_id": filter.TypeInteger,
		"tag_id":         filter.TypeInteger,
	})
	tagsTable = filter.NewTable("tags", map[string]filter.ColumnType{
		"id":           filter.TypeInteger,
		"text":         filter.TypeString,
		"type_of_tag":  filter.TypeString,
		"is_taxonomic": filter.TypeBoolean,
		"retired":      filter.TypeBoolean,
		"notes":        filter.TypeJSON,
		"created_at":   filter.TypeDateTime,
	})
	harvestsTable = filter.NewTable("harvests", map[string]filter.ColumnType{
		"id":          filter.TypeInteger,
		"project_id":  filter.TypeInteger,
		"creator_id":  filter.TypeInteger,
		"status":      filter.TypeString,
		"upload_path": filter.TypeString,
		"mappings":    filter.TypeJSON,
		"created_at":  filter.TypeDateTime,
		"updated_at":  filter.TypeDateTime,
	})
	harvestItemsTable = filter.NewTable("harvest_items", map[string]filter.ColumnType{
		"id":                 filter.TypeInteger,
		"harvest_id":         filter.TypeInteger,
		"path":               filter.TypeString,
		"status":             filter.TypeString,
		"info":               filter.TypeJSON,
		"audio_recording_id": filter.TypeInteger,
		"uploader_id":        filter.TypeInteger,
		"fingerprint":        filter.TypeString,
		"deleted":            filter.TypeBoolean,
		"created_at":         filter.TypeDateTime,
		"updated_at":         filter.TypeDateTime,
	})
)

func on(left, right filter.Column) filter.Expr {
	return filter.Binary{Op: filter.OpSQLEq, Left: left, Right: right}
}

func siteToProjects() filter.Association {
	return filter.Association{
		Table: projectsSitesTable.Name,
		On:    on(sitesTable.Col("id"), projectsSitesTable.Col("site_id")),
		Children: []filter.Association{{
			Table:     projectsTable.Name,
			On:        on(projectsSitesTable.Col("project_id"), projectsTable.Col("id")),
			Available: true,
		}},
	}
}

func eventToTags() filter.Association {
	return filter.Association{
		Table: taggingsTable.Name,
		On:    on(audioEventsTable.Col("id"), taggingsTable.Col("audio_event_id")),
		Children: []filter.Association{{
			Table:     tagsTable.Name,
			On:        on(taggingsTable.Col("tag_id"), tagsTable.Col("id")),
			Available: true,
		}},
	}
}

func recordingToSite() filter.Association {
	return filter.Association{
		Table:     sitesTable.Name,
		On:        on(audioRecordingsTable.Col("site_id"), sitesTable.Col("id")),
		Available: true,
		Children:  []filter.Association{siteToProjects()},
	}
}

var siteTimezone = &filter.TimezoneSource{Table: sitesTable.Name, Column: "tzinfo_tz"}

func projectSettings() filter.Settings {
	return filter.Settings{
		Resource:     Projects,
		Table:        projectsTable,
		ValidFields:  []string{"id", "name", "description", "creator_id", "created_at", "updated_at"},
		TextFields:   []string{"name", "description"},
		RenderFields: []string{"id", "name", "description", "creator_id", "created_at", "updated_at"},
		Associations: []filter.Association{{
			Table: projectsSitesTable.Name,
			On:    on(projectsTable.Col("id"), projectsSitesTable.Col("project_id")),
			Children: []filter.Association{{
				Table:     sitesTable.Name,
				On:        on(projectsSitesTable.Col("site_id"), sitesTable.Col("id")),
				Available: true,
			}},
		}},
		Defaults: filter.Defaults{OrderBy: "name", Direction: filter.Asc},
	}
}

func siteSettings() filter.Settings {
	return filter.Settings{
		Resource:     Sites,
		Table:        sitesTable,
		ValidFields:  []string{"id", "name", "description", "tzinfo_tz", "latitude", "longitude", "creator_id", "created_at", "updated_at"},
		TextFields:   []string{"name", "description"},
		RenderFields: []string{"id", "name", "description", "tzinfo_tz", "latitude", "longitude", "creator_id", "created_at", "updated_at"},
		Associations: []filter.Association{
			siteToProjects(),
			{
				Table:     audioRecordingsTable.Name,
				On:        on(sitesTable.Col("id"), audioRecordingsTable.Col("site_id")),
				Available: true,
			},
		},
		Defaults: filter.Defaults{OrderBy: "name", Direction: filter.Asc},
		Timezone: siteTimezone,
	}
}

func audioRecordingSettings() filter.Settings {
	return filter.Settings{
		Resource: AudioRecordings,
		Table:    audioRecordingsTable,
		ValidFields: []string{
			"id", "uuid", "site_id", "uploader_id", "recorded_date", "recorded_utc_offset",
			"duration_seconds", "sample_rate_hertz", "channels", "bit_rate_bps", "media_type",
			"data_length_bytes", "file_hash", "status", "original_file_name", "notes",
			"created_at", "updated_at", "recorded_end_date",
		},
		TextFields: []string{"media_type", "status", "original_file_name"},
		RenderFields: []string{
			"id", "uuid", "site_id", "uploader_id", "recorded_date", "recorded_utc_offset",
			"duration_seconds", "sample_rate_hertz", "channels", "bit_rate_bps", "media_type",
			"data_length_bytes", "status", "created_at", "updated_at",
		},
		CustomFields: []filter.CustomField{
			{
				Name: "recorded_end_date",
				Expr: filter.Group{Inner: filter.Binary{
					Op:   filter.OpSQLPlus,
					Left: audioRecordingsTable.Col("recorded_date"),
					Right: filter.Binary{
						Op:    filter.OpSQLTimes,
						Left:  audioRecordingsTable.Col("duration_seconds"),
						Right: filter.Raw("INTERVAL '1 second'"),
					},
				}},
				Type: filter.TypeDateTime,
			},
			{
				Name:            "canonical_file_name",
				QueryAttributes: []string{"uuid", "recorded_date", "media_type", "original_file_name"},
				Transform:       canonicalFileName,
			},
		},
		Associations: []filter.Association{
			recordingToSite(),
			{
				Table:     audioEventsTable.Name,
				On:        on(audioRecordingsTable.Col("id"), audioEventsTable.Col("audio_recording_id")),
				Available: true,
				Children:  []filter.Association{eventToTags()},
			},
		},
		Defaults: filter.Defaults{OrderBy: "recorded_date", Direction: filter.Desc},
		Timezone: siteTimezone,
	}
}

func audioEventSettings() filter.Settings {
	return filter.Settings{
		Resource: AudioEvents,
		Table:    audioEventsTable,
		ValidFields: []string{
			"id", "audio_recording_id", "start_time_seconds", "end_time_seconds",
			"low_frequency_hertz", "high_frequency_hertz", "is_reference", "creator_id",
			"created_at", "updated_at", "duration_seconds",
		},
		RenderFields: []string{
			"id", "audio_recording_id", "start_time_seconds", "end_time_seconds",
			"low_frequency_hertz", "high_frequency_hertz", "is_reference", "creator_id",
			"created_at", "updated_at",
		},
		CustomFields: []filter.CustomField{{
			Name: "duration_seconds",
			Expr: filter.Group{Inner: filter.Binary{
				Op:    filter.OpSQLMinus,
				Left:  audioEventsTable.Col("end_time_seconds"),
				Right: audioEventsTable.Col("start_time_seconds"),
			}},
			Type: filter.TypeDecimal,
		}},
		Associations: []filter.Association{
			{
				Table:     audioRecordingsTable.Name,
				On:        on(audioEventsTable.Col("audio_recording_id"), audioRecordingsTable.Col("id")),
				Available: true,
				Children: []filter.Association{{
					Table:     sitesTable.Name,
					On:        on(audioRecordingsTable.Col("site_id"), sitesTable.Col("id")),
					Available: true,
					Children:  []filter.Association{siteToProjects()},
				}},
			},
			eventToTags(),
		},
		Defaults: filter.Defaults{OrderBy: "created_at", Direction: filter.Desc},
		Timezone: siteTimezone,
	}
}

func tagSettings() filter.Settings {
	return filter.Settings{
		Resource:     Tags,
		Table:        tagsTable,
		ValidFields:  []string{"id", "text", "type_of_tag", "is_taxonomic", "retired", "notes", "created_at"},
		TextFields:   []string{"text", "type_of_tag"},
		RenderFields: []string{"id", "text", "type_of_tag", "is_taxonomic", "retired", "created_at"},
		Associations: []filter.Association{{
			Table: taggingsTable.Name,
			On:    on(tagsTable.Col("id"), taggingsTable.Col("tag_id")),
			Children: []filter.Association{{
				Table:     audioEventsTable.Name,
				On:        on(taggingsTable.Col("audio_event_id"), audioEventsTable.Col("id")),
				Available: true,
			}},
		}},
		Defaults: filter.Defaults{OrderBy: "text", Direction: filter.Asc},
	}
}

func harvestSettings() filter.Settings {
	return filter.Settings{
		Resource:     Harvests,
		Table:        harvestsTable,
		ValidFields:  []string{"id", "project_id", "creator_id", "status", "upload_path", "created_at", "updated_at"},
		TextFields:   []string{"upload_path"},
		RenderFields: []string{"id", "project_id", "creator_id", "status", "upload_path", "mappings", "created_at", "updated_at"},
		Associations: []filter.Association{{
			Table:     projectsTable.Name,
			On:        on(harvestsTable.Col("project_id"), projectsTable.Col("id")),
			Available: true,
		}},
		Defaults: filter.Defaults{OrderBy: "created_at", Direction: filter.Desc},
	}
}

func harvestItemSettings() filter.Settings {
	return filter.Settings{
		Resource: HarvestItems,
		Table:    harvestItemsTable,
		ValidFields: []string{
			"id", "harvest_id", "path", "status", "info", "audio_recording_id", "uploader_id",
			"deleted", "created_at", "updated_at",
		},
		TextFields:   []string{"path"},
		RenderFields: []string{"id", "harvest_id", "path", "status", "info", "audio_recording_id", "uploader_id", "created_at", "updated_at"},
		Associations: []filter.Association{
			{
				Table:     harvestsTable.Name,
				On:        on(harvestItemsTable.Col("harvest_id"), harvestsTable.Col("id")),
				Available: true,
			},
			{
				Table:     audioRecordingsTable.Name,
				On:        on(harvestItemsTable.Col("audio_recording_id"), audioRecordingsTable.Col("id")),
				Available: true,
			},
		},
		Defaults: filter.Defaults{OrderBy: "path", Direction: filter.Asc},
	}
}

// NewRegistry validates every resource and builds the filter registry.
func NewRegistry(cacheSize int) (*filter.Registry, error) {
	builders := []func() filter.Settings{
		projectSettings,
		siteSettings,
		audioRecordingSettings,
		audioEventSettings,
		tagSettings,
		harvestSettings,
		harvestItemSettings,
	}
	all := make([]*filter.Settings, 0, len(builders))
	for _, build := range builders {
		s, err := filter.NewSettings(build())
		if err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		all = append(all, s)
	}
	return filter.NewRegistry(cacheSize, all...)
}

func canonicalFileName(row map[string]any) any {
	uuid, _ := row["uuid"].(string)
	mediaType, _ := row["media_type"].(string)
	original, _ := row["original_file_name"].(string)
	var recorded time.Time
	switch v := row["recorded_date"].(type) {
	case time.Time:
		recorded = v
	case string:
		recorded, _ = time.Parse(time.RFC3339Nano, v)
	}
	if uuid == "" {
		return nil
	}
	return models.CanonicalFileName(uuid, recorded, mediaType, original)
}
