package schema

// March2022 is the current chat-store layout.
var March2022 = NewBuilder("march2022").
	Table(TableSpec{
		Name:    "jid",
		HasID:   true,
		Uniques: [][]string{Unique("raw_string")},
	}).
	Table(TableSpec{
		Name:      "messages_quotes",
		HasID:     true,
		Refs:      []RefSpec{Ref("quoted_row_id", "messages_quotes")},
		Timestamp: "timestamp",
	}).
	Table(TableSpec{
		Name:      "messages",
		HasID:     true,
		Refs:      []RefSpec{Ref("quoted_row_id", "messages_quotes")},
		Timestamp: "timestamp",
	}).
	Table(TableSpec{
		Name:  "messages_vcards",
		HasID: true,
		Refs:  []RefSpec{Ref("message_row_id", "messages")},
	}).
	Table(TableSpec{
		Name:  "messages_vcards_jids",
		HasID: true,
		Refs: []RefSpec{
			Ref("message_row_id", "messages"),
			Ref("vcard_row_id", "messages_vcards"),
		},
	}).
	Table(TableSpec{
		Name:  "message_vcard_jid",
		HasID: true,
		Refs: []RefSpec{
			Ref("message_row_id", "messages"),
			Ref("vcard_jid_row_id", "jid"),
		},
	}).
	Table(TableSpec{
		Name:  "group_participant_user",
		HasID: true,
		Refs: []RefSpec{
			Ref("group_jid_row_id", "jid"),
			Ref("user_jid_row_id", "jid"),
		},
		Uniques: [][]string{Unique("group_jid_row_id", "user_jid_row_id")},
	}).
	Table(TableSpec{
		Name:  "group_participant_device",
		HasID: true,
		Refs: []RefSpec{
			Ref("group_participant_row_id", "group_participant_user"),
			Ref("device_jid_row_id", "jid"),
		},
		Uniques: [][]string{Unique("group_participant_row_id", "device_jid_row_id")},
	}).
	Table(TableSpec{
		// Backed by a unique index on (gjid, jid).
		Name:    "group_participants",
		HasID:   true,
		Uniques: [][]string{Unique("gjid", "jid")},
	}).
	// reference count for each media
	Table(TableSpec{Name: "media_refs", HasID: true}).
	Table(TableSpec{
		// Thumbnail blobs. Losing a few is acceptable; some rows are too
		// large to insert at all.
		Name:               "message_thumbnails",
		Uniques:            [][]string{Unique("key_remote_jid", "key_from_me", "key_id")},
		MaxBatch:           1,
		DropFailingBatches: true,
		Timestamp:          "timestamp",
	}).
	Table(TableSpec{
		Name:    "message_forwarded",
		Refs:    []RefSpec{Ref("message_row_id", "messages")},
		Uniques: [][]string{Unique("message_row_id")},
	}).
	Table(TableSpec{
		Name:  "messages_links",
		HasID: true,
		Refs:  []RefSpec{Ref("message_row_id", "messages")},
	}).
	Table(TableSpec{
		Name:    "audio_data",
		Refs:    []RefSpec{Ref("message_row_id", "messages")},
		Uniques: [][]string{Unique("message_row_id")},
	}).
	Table(TableSpec{
		Name:    "user_device_info",
		Refs:    []RefSpec{Ref("user_jid_row_id", "jid")},
		Uniques: [][]string{Unique("user_jid_row_id")},
	}).
	Table(TableSpec{
		Name:  "chat",
		HasID: true,
		Refs: []RefSpec{
			Ref("jid_row_id", "jid"),
			Ref("display_message_row_id", "messages"),
			Ref("last_message_row_id", "messages"),
			Ref("last_read_message_row_id", "messages"),
			// Inconsistent even in unmodified databases.
			IgnoredRef("last_read_receipt_sent_message_row_id", "messages"),
			IgnoredRef("last_important_message_row_id", "messages"),
			IgnoredRef("change_number_notified_message_row_id", "messages"),
			Ref("last_read_ephemeral_message_row_id", "messages"),
		},
		Uniques: [][]string{Unique("jid_row_id")},
	}).
	Table(TableSpec{
		Name: "message_media",
		Refs: []RefSpec{
			IgnoredRef("message_row_id", "messages"),
			Ref("chat_row_id", "chat"),
		},
		Uniques: [][]string{Unique("message_row_id")},
	}).
	Table(TableSpec{
		Name:  "receipt_user",
		HasID: true,
		Refs: []RefSpec{
			Ref("message_row_id", "messages"),
			Ref("receipt_user_jid_row_id", "jid"),
		},
		Uniques: [][]string{Unique("message_row_id", "receipt_user_jid_row_id")},
	}).
	Table(TableSpec{
		Name:  "receipt_device",
		HasID: true,
		Refs: []RefSpec{
			Ref("message_row_id", "messages"),
			Ref("receipt_device_jid_row_id", "jid"),
		},
		Uniques: [][]string{Unique("message_row_id", "receipt_device_jid_row_id")},
	}).
	Table(TableSpec{Name: "receipts", HasID: true}).
	MustBuild()
