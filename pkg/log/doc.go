/*
Package log configures burrow's zerolog logger.

Init sets the global level and output, JSON or console. Components derive
their own logger with WithComponent and add identifiers with
WithRequestID, WithReservationID and WithResourceID:

	logger := log.WithComponent("scheduler")
	logger = log.WithRequestID(logger, r.ID)
	logger.Info().Msg("Request allocated")
*/
package log
