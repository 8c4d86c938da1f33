// Package services wraps every external provider the backend depends on behind a small interface.
//
// # Interfaces
//
// Tasks depend only on the interfaces, so tests substitute hand-written mocks:
//   - [Billing] : cancel, create customer, clone payment method, create subscription
//   - [Mailer] : send one transactional email
//   - [Identity] : verify ID tokens and manage auth accounts
//   - [Generator] : text generation with model fallback
//   - [Locker] : duplicate-delivery guard for the placement handoff
//
// # Billing
//
// [StripeBilling] holds one client per Stripe account. Retainer subscriptions live on the Rep account
// and are only ever cancelled; customers, payment methods and ISA subscriptions are created on the CPF
// account. SDK errors are converted to [StripeError], which matches [shared.ErrBillingRequest].
//
// # Email
//
// [ResendMailer] sends through Resend. The internal new-lead notification and the applicant
// auto-response are embedded html/template files rendered by [RenderInternalNotification]
// and [RenderApplicantAutoResponse].
//
// # Generative Text
//
// [FallbackGenerator] walks an ordered model list over a [ModelClient] ([GenAIClient] in production).
// The first non-empty answer wins; an invalid key stops the walk. Markdown fences are stripped with [StripFences].
//
// [ProbeClient] talks to the REST API directly and backs the diagnostics command.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrMissingCredentials] : provider key not configured
//   - [shared.ErrBillingRequest] : a Stripe call failed
//   - [shared.ErrEmailSend] : the email provider rejected the message
//   - [shared.ErrInvalidAPIKey] : Gemini rejected the key
//   - [shared.ErrAllModelsFailed] : every fallback model failed
//   - [shared.ErrLockHeld] : another delivery holds the placement lock
package services
