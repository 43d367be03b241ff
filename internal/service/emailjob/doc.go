// Package emailjob dispatches one promotion email template to a resolved
// audience through SES. Content is built once per job, recipients are sent
// in governed chunks, and every recipient ends up with exactly one sent-log
// row carrying a terminal status.
package emailjob
