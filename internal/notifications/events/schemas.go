// internal/notifications/events/schemas.go
package events

// Row shapes of the watched tables. Only the columns the decision engine
// reads are constrained; everything else passes through.
const matchRowSchema = `{
  "type": "object",
  "required": ["id", "home_user_id", "away_user_id", "status"],
  "properties": {
    "id":           {"type": "string", "minLength": 1},
    "league_id":    {"type": ["string", "null"]},
    "home_user_id": {"type": "string"},
    "away_user_id": {"type": "string"},
    "home_score":   {"type": ["integer", "null"]},
    "away_score":   {"type": ["integer", "null"]},
    "status":       {"type": "string"}
  }
}`

const leagueRowSchema = `{
  "type": "object",
  "required": ["id", "name"],
  "properties": {
    "id":              {"type": "string", "minLength": 1},
    "name":            {"type": "string"},
    "status":          {"type": ["string", "null"]},
    "participant_ids": {
      "type": ["array", "null"],
      "items": {"type": "string"}
    }
  }
}`

const notificationRowSchema = `{
  "type": "object",
  "required": ["id", "user_id", "title", "message"],
  "properties": {
    "id":       {"type": "string", "minLength": 1},
    "user_id":  {"type": "string", "minLength": 1},
    "type":     {"enum": ["league", "match", "news", "system"]},
    "category": {"type": ["string", "null"]},
    "priority": {"type": ["string", "null"]},
    "title":    {"type": "string"},
    "message":  {"type": "string"},
    "read":     {"type": "boolean"},
    "archived": {"type": "boolean"}
  }
}`
