package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/tourauth/internal/application"
	"github.com/oksasatya/tourauth/pkg/helpers"
)

var errMalformedEvent = errors.New("malformed event")

type indexer struct {
	es     *elasticsearch.Client
	index  string
	logger *logrus.Logger
}

// handle stores one queued event. Malformed bodies are dropped; indexing
// failures ask for a requeue.
func (i *indexer) handle(ctx context.Context, body []byte) (requeue bool, err error) {
	var ev application.SecurityEvent
	if err := json.Unmarshal(body, &ev); err != nil || ev.ID == "" || ev.Type == "" {
		i.logger.WithField("body", string(body)).Warn("dropping malformed event")
		return false, errMalformedEvent
	}
	if err := helpers.IndexDocument(ctx, i.es, i.index, ev.ID, ev); err != nil {
		i.logger.WithError(err).WithFields(logrus.Fields{"event_id": ev.ID, "type": ev.Type}).Error("index event failed")
		return true, err
	}
	i.logger.WithFields(logrus.Fields{"event_id": ev.ID, "type": ev.Type, "user_id": ev.UserID}).Debug("event indexed")
	return false, nil
}
