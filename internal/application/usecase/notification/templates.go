package notification

import "github.com/khoahotran/lecture-video/internal/domain/notification"

// defaults back a notification type whose template was never stored.
var defaults = map[notification.Type]notification.Template{
	notification.TypeSuccess: {
		Type:    notification.TypeSuccess,
		Subject: `Your video "{{.video_title}}" is ready`,
		Body: `The video "{{.video_title}}" in "{{.collection_title}}" finished processing.

Watch it at {{.video_url}}
Manage the collection at {{.collection_url}}

Questions? Write to {{.support_email}}.
`,
	},
	notification.TypeInvalidInput: {
		Type:    notification.TypeInvalidInput,
		Subject: `Your video "{{.video_title}}" could not be processed`,
		Body: `The file uploaded for "{{.video_title}}" in "{{.collection_title}}" could not be transcoded.
Please check that it is a valid video file and upload it again at {{.collection_url}}

Questions? Write to {{.support_email}}.
`,
	},
	notification.TypeOtherError: {
		Type:    notification.TypeOtherError,
		Subject: `Processing of "{{.video_title}}" failed`,
		Body: `Processing of "{{.video_title}}" in "{{.collection_title}}" failed on our side.
Support has been notified. You can check its status at {{.video_url}}

Questions? Write to {{.support_email}}.
`,
	},
}
