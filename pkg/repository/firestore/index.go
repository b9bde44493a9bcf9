package firestore

import "github.com/m-mizutani/fireconf"

// IndexConfig returns the composite indexes the repository queries need
func IndexConfig(prefix string) *fireconf.Config {
	return &fireconf.Config{
		Collections: []fireconf.Collection{
			{
				Name: collectionName(prefix, actionRecordsCollection),
				Indexes: []fireconf.Index{
					// ListByGuild: guild_id ASC, applied_at ASC
					{
						Fields: []fireconf.IndexField{
							{Path: "guild_id", Order: fireconf.OrderAscending},
							{Path: "applied_at", Order: fireconf.OrderAscending},
						},
					},
				},
			},
			{
				Name: collectionName(prefix, modlogCasesCollection),
				Indexes: []fireconf.Index{
					// ListOpen: guild_id, subject_id, open, type, created_at
					{
						Fields: []fireconf.IndexField{
							{Path: "guild_id", Order: fireconf.OrderAscending},
							{Path: "subject_id", Order: fireconf.OrderAscending},
							{Path: "open", Order: fireconf.OrderAscending},
							{Path: "type", Order: fireconf.OrderAscending},
							{Path: "created_at", Order: fireconf.OrderAscending},
						},
					},
					// ListByGuild: guild_id ASC, created_at ASC
					{
						Fields: []fireconf.IndexField{
							{Path: "guild_id", Order: fireconf.OrderAscending},
							{Path: "created_at", Order: fireconf.OrderAscending},
						},
					},
				},
			},
		},
	}
}
