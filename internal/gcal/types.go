package gcal

// Event is the normalized calendar event exposed to the rest of the
// application. Start and End are either date-only strings (all-day) or
// wall-clock datetime strings interpreted in the event's timezone.
// Invariant: AllDay is true iff Start has no time component.
type Event struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Start       string     `json:"start"`
	End         string     `json:"end"`
	AllDay      bool       `json:"allDay"`
	ColorID     string     `json:"colorId,omitempty"`
	CalendarID  string     `json:"calendarId"`
	Status      string     `json:"status"`
	MeetLink    string     `json:"meetLink,omitempty"`
	Attendees   []Attendee `json:"attendees,omitempty"`
}

// Attendee is a single event participant.
type Attendee struct {
	Email          string `json:"email"`
	ResponseStatus string `json:"responseStatus,omitempty"`
	Self           bool   `json:"self,omitempty"`
}

// EventWrite carries the fields written on insert or update. Start and End
// use the same wall-clock/date-only encoding as Event; TimeZone names the
// IANA zone that wall-clock values are interpreted in.
type EventWrite struct {
	Title       string
	Description string
	Location    string
	Start       string
	End         string
	AllDay      bool
	TimeZone    string
	ColorID     string
}

// Calendar is one entry from the user's calendar list.
type Calendar struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	TimeZone string `json:"timeZone"`
	Primary  bool   `json:"primary"`
}

// eventTimeResource mirrors the Calendar API start/end JSON on the read
// path. Exactly one of Date or DateTime is set.
type eventTimeResource struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// eventResource mirrors the Calendar API event JSON on the read path.
// Unexported — callers receive normalized Event values via toEvent().
type eventResource struct {
	ID          string             `json:"id"`
	Summary     string             `json:"summary"`
	Description string             `json:"description"`
	Location    string             `json:"location"`
	Start       *eventTimeResource `json:"start"`
	End         *eventTimeResource `json:"end"`
	Status      string             `json:"status"`
	ColorID     string             `json:"colorId"`
	HangoutLink string             `json:"hangoutLink"`
	Attendees   []struct {
		Email          string `json:"email"`
		ResponseStatus string `json:"responseStatus"`
		Self           bool   `json:"self"`
	} `json:"attendees"`
}

// eventTimePayload is the start/end block on the write path. Fields have
// no omitempty on Date and DateTime: when switching an event between timed
// and all-day, the unused field must serialize as explicit JSON null or
// the API rejects the patch with a 400.
type eventTimePayload struct {
	Date     *string `json:"date"`
	DateTime *string `json:"dateTime"`
	TimeZone *string `json:"timeZone"`
}

// eventPayload is the write-path event body. Pointer fields distinguish
// "unset" (null) from empty strings, so a cleared colorId or location is
// sent as null rather than "".
type eventPayload struct {
	Summary     *string           `json:"summary,omitempty"`
	Description *string           `json:"description,omitempty"`
	Location    *string           `json:"location"`
	ColorID     *string           `json:"colorId"`
	Start       *eventTimePayload `json:"start,omitempty"`
	End         *eventTimePayload `json:"end,omitempty"`
}

// eventListResponse mirrors one page of the events.list response.
type eventListResponse struct {
	Items         []eventResource `json:"items"`
	NextPageToken string          `json:"nextPageToken"`
	NextSyncToken string          `json:"nextSyncToken"`
}

// calendarListResponse mirrors the calendarList.list response.
type calendarListResponse struct {
	Items []struct {
		ID       string `json:"id"`
		Summary  string `json:"summary"`
		TimeZone string `json:"timeZone"`
		Primary  bool   `json:"primary"`
	} `json:"items"`
	NextPageToken string `json:"nextPageToken"`
}
