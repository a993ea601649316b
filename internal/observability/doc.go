// Package observability records client activity as JSON Lines events,
// derives usage metrics from them, raises deadline alerts from the task
// list, and delivers alerts to Slack.
package observability
