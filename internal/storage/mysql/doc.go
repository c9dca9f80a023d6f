// Package mysql persists the conversational exchange audit log. The memory
// repository is the default and keeps a bounded in-memory slice, evicting the
// oldest records; the SQL repository targets MySQL and bootstraps its own
// schema. Conversation state itself never lives here — this is an audit
// trail only.
package mysql
