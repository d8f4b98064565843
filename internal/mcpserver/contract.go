package mcpserver

// QueryFormatContract describes the request syntax of the query and
// aggregate tools for LLM consumers.
const QueryFormatContract = `# Lifelog Query Format Contract

Every query targets one root entity: ` + "`event`" + ` (default), ` + "`person`" + ` or ` + "`location`" + `.
Call ` + "`describe_schema`" + ` for the exact fields, value sets and relationships.

## Filters

` + "```" + `json
{
  "category": "work",                         // equality
  "participant.interaction_mode": "virtual_video",
  "intensity": {"gte": 6},                    // operator object
  "meal_type": ["lunch", "dinner"],           // a list means "in"
  "tags": ["gym", "morning"],                 // any of these tags
  "end_time": null,                           // is null
  "date_range": "this_week"
}
` + "```" + `

## Rules

1. **Field references** are ` + "`field`" + ` or ` + "`path.field`" + `. An unqualified name resolves to
   the root entity first, then to the only path declaring it. Names declared on several
   paths (e.g. ` + "`name`" + `, ` + "`distance_km`" + `) must be qualified.
2. **Operators:** eq, ne, gt, gte, lt, lte, in, contains, prefix, is_null. Tags accept
   any, all and is_null. Several objects on one field combine with ` + "`{\"and\": [...]}`" + `.
3. **Enumerated fields** only accept their listed values (case-insensitive).
4. **Dates:** today, yesterday, tomorrow, this_week, last_week, this_month, last_month,
   this_year, last_year, last_n_days:N, an ISO date (the whole day), an interval
   ` + "`2024-06-01/2024-06-07`" + ` (end day inclusive) or ` + "`{\"start\": ..., \"end\": ...}`" + `.
   Weeks start on Monday. ` + "`date_range`" + ` applies to ` + "`start_time`" + `.
5. **Hydration** attaches relationships to each event without changing which events
   match: participants, location, tags, specialization (or one kind: workout, meal,
   commute, sleep, reflection).
6. **Ordering:** ` + "`-start_time`" + `, ` + "`title asc`" + `. Default is newest first.
7. **Aggregates:** group_by takes fields or ` + "`time_field:day|week|month|year`" + `; metrics are
   ` + "`count`" + `, ` + "`count:field`" + ` or ` + "`sum|avg|min|max:numeric_field`" + `. Fields on participant
   cannot be grouped or aggregated. Week buckets are labelled by their Monday (YYYY-MM-DD).
8. **Soft-deleted rows** are invisible unless include_deleted is true.
`
