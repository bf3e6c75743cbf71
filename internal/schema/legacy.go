package schema

// Legacy is the layout written by app versions before March 2022. It declares
// fewer uniqueness constraints; tables without one insert with ConflictAbort,
// so any unexpected duplicate stops the merge instead of being dropped.
var Legacy = NewBuilder("legacy").
	Table(TableSpec{
		Name:    "jid",
		HasID:   true,
		Uniques: [][]string{Unique("raw_string")},
	}).
	Table(TableSpec{
		Name:   "messages_quotes",
		HasID:  true,
		Refs:   []RefSpec{Ref("quoted_row_id", "messages_quotes")},
		Policy: ConflictAbort,
	}).
	Table(TableSpec{
		Name:   "messages",
		HasID:  true,
		Refs:   []RefSpec{Ref("quoted_row_id", "messages_quotes")},
		Policy: ConflictAbort,
	}).
	Table(TableSpec{
		Name:   "messages_vcards",
		HasID:  true,
		Refs:   []RefSpec{Ref("message_row_id", "messages")},
		Policy: ConflictAbort,
	}).
	Table(TableSpec{
		Name:  "messages_vcards_jids",
		HasID: true,
		Refs: []RefSpec{
			Ref("message_row_id", "messages"),
			Ref("vcard_row_id", "messages_vcards"),
		},
		Policy: ConflictAbort,
	}).
	Table(TableSpec{
		Name:  "message_vcard_jid",
		HasID: true,
		Refs: []RefSpec{
			Ref("message_row_id", "messages"),
			Ref("vcard_jid_row_id", "jid"),
		},
		Policy: ConflictAbort,
	}).
	Table(TableSpec{
		Name:  "group_participant_user",
		HasID: true,
		Refs: []RefSpec{
			Ref("group_jid_row_id", "jid"),
			Ref("user_jid_row_id", "jid"),
		},
		Policy: ConflictAbort,
	}).
	Table(TableSpec{
		Name:  "group_participant_device",
		HasID: true,
		Refs: []RefSpec{
			Ref("group_participant_row_id", "group_participant_user"),
			Ref("device_jid_row_id", "jid"),
		},
		Policy: ConflictAbort,
	}).
	Table(TableSpec{
		Name:    "group_participants",
		HasID:   true,
		Uniques: [][]string{Unique("gjid", "jid")},
	}).
	Table(TableSpec{Name: "media_refs", HasID: true, Policy: ConflictAbort}).
	Table(TableSpec{
		Name:               "message_thumbnails",
		MaxBatch:           1,
		DropFailingBatches: true,
		Policy:             ConflictAbort,
	}).
	Table(TableSpec{
		Name:   "message_forwarded",
		Refs:   []RefSpec{Ref("message_row_id", "messages")},
		Policy: ConflictAbort,
	}).
	Table(TableSpec{
		Name:   "messages_links",
		HasID:  true,
		Refs:   []RefSpec{Ref("message_row_id", "messages")},
		Policy: ConflictAbort,
	}).
	Table(TableSpec{
		Name:   "audio_data",
		Refs:   []RefSpec{Ref("message_row_id", "messages")},
		Policy: ConflictAbort,
	}).
	Table(TableSpec{
		Name:   "user_device_info",
		Refs:   []RefSpec{Ref("user_jid_row_id", "jid")},
		Policy: ConflictAbort,
	}).
	Table(TableSpec{
		Name:  "chat",
		HasID: true,
		Refs: []RefSpec{
			Ref("jid_row_id", "jid"),
			Ref("display_message_row_id", "messages"),
			Ref("last_message_row_id", "messages"),
			Ref("last_read_message_row_id", "messages"),
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
		Policy: ConflictAbort,
	}).
	Table(TableSpec{
		Name:  "receipt_user",
		HasID: true,
		Refs: []RefSpec{
			Ref("message_row_id", "messages"),
			Ref("receipt_user_jid_row_id", "jid"),
		},
		Policy: ConflictAbort,
	}).
	Table(TableSpec{
		Name:  "receipt_device",
		HasID: true,
		Refs: []RefSpec{
			Ref("message_row_id", "messages"),
			Ref("receipt_device_jid_row_id", "jid"),
		},
		Policy: ConflictAbort,
	}).
	Table(TableSpec{Name: "receipts", HasID: true, Policy: ConflictAbort}).
	MustBuild()
