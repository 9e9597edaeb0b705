package service

import (
	"github.com/golang/glog"

	"activitychat/internal/realtime"
)

// publish announces a row change. Failing to encode a row only costs live
// subscribers an update, so it is logged and not returned.
func publish(pub realtime.Publisher, table string, kind realtime.Kind, row any) {
	if pub == nil {
		return
	}
	c, err := realtime.NewChange(table, kind, row)
	if err != nil {
		glog.Errorf("service: publish %s %s: %v", kind, table, err)
		return
	}
	pub.Publish(c)
}
