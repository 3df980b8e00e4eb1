package ctxlog

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestFromContext_Default(t *testing.T) {
	logger := FromContext(context.Background())
	assert.Equal(t, logrus.StandardLogger(), logger)
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	ctx := WithLogger(context.Background(), base)
	ctx = WithFields(ctx, logrus.Fields{"stage": "generate"})
	FromContext(ctx).Info("done")

	assert.Contains(t, buf.String(), "stage=generate")
	assert.Contains(t, buf.String(), "msg=done")
}
